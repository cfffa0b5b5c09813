package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/domain"
)

type suggestOptions struct {
	noCache     bool
	explain     bool
	suggestions int
	run         bool
	yes         bool
}

func bindSuggestFlags(cmd *cobra.Command, o *suggestOptions) {
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "Skip the cache and always ask the model")
	cmd.Flags().BoolVar(&o.explain, "explain", false, "Ask for and show explanations")
	cmd.Flags().IntVarP(&o.suggestions, "suggestions", "n", 0, "Number of suggestions (default from config)")
	cmd.Flags().BoolVar(&o.run, "run", false, "Pick a suggestion and run it, recording the outcome")
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Run the first suggestion without asking")
}

func newSuggestCommand(container *app.Container) *cobra.Command {
	var o suggestOptions
	cmd := &cobra.Command{
		Use:   "suggest <prompt...>",
		Short: "Suggest shell commands for a prompt",
		Long:  "Suggest shell commands for a prompt. Use this form when the prompt starts with a subcommand name.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd, container, args, o)
		},
	}
	bindSuggestFlags(cmd, &o)
	return cmd
}

func runSuggest(cmd *cobra.Command, container *app.Container, args []string, o suggestOptions) error {
	if container.QueryService == nil {
		return errors.New("query service unavailable")
	}
	ctx := cmd.Context()
	prompt := strings.Join(args, " ")

	spinner := NewSpinner(os.Stderr, "thinking...")
	spinner.Start()
	resp, err := container.QueryService.Suggest(ctx, domain.SuggestRequest{
		Prompt:         prompt,
		NoCache:        o.noCache,
		Explain:        o.explain,
		MaxSuggestions: o.suggestions,
	})
	spinner.Stop()

	out := cmd.OutOrStdout()
	if errors.Is(err, domain.ErrNoCandidates) {
		RenderDiscarded(out, resp.Discarded)
		return err
	}
	if err != nil {
		return err
	}
	RenderSuggestions(out, resp, o.explain)
	if !o.run {
		fmt.Fprintf(out, "\nRun with --run, or record the result with: phloem record %q '<command>'\n", prompt)
		return nil
	}

	prompter := NewPrompter(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr())
	choice, ok := prompter.Select(resp.Suggestions, o.yes)
	if !ok {
		fmt.Fprintln(out, "Nothing run.")
		return nil
	}
	if container.Config.Execution.ConfirmBeforeExecute && !o.yes && !prompter.Confirm(choice.Command) {
		fmt.Fprintln(out, "Nothing run.")
		return nil
	}
	return executeAndRecord(cmd, container, prompt, choice.Command)
}

func executeAndRecord(cmd *cobra.Command, container *app.Container, prompt, command string) error {
	ctx := cmd.Context()
	res, err := container.Executor.Execute(ctx, command)
	if !res.Ran {
		return fmt.Errorf("run %q: %w", command, err)
	}
	code := res.ExitCode
	outcome, recErr := container.Recorder.Record(ctx, domain.OutcomeRequest{
		Prompt:    prompt,
		Command:   command,
		Succeeded: err == nil && code == 0,
		ExitCode:  &code,
	})
	RenderOutcome(cmd.ErrOrStderr(), res, outcome)
	if recErr != nil {
		container.Logger.Warn("outcome not fully recorded", map[string]interface{}{"error": recErr.Error()})
	}
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// ExitError propagates the exit status of an executed suggestion.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("command exited with status %d", e.Code) }
