package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/domain"
)

// NewRecordCommand reports the outcome of a command the user ran themselves.
func NewRecordCommand(container *app.Container) *cobra.Command {
	var (
		failed   bool
		exitCode int
	)
	cmd := &cobra.Command{
		Use:   "record <prompt> <command>",
		Short: "Record whether a suggested command worked",
		Long: `Record the outcome of running a command for a prompt. Successful
outcomes raise the suggestion's success rate and teach the knowledge document.`,
		Example: `  phloem record "list running containers" "docker ps"
  phloem record "free disk space" "df -h" --exit-code 1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Recorder == nil {
				return errors.New(ErrRecorderUnavailable)
			}
			req := domain.OutcomeRequest{Prompt: args[0], Command: args[1], Succeeded: !failed}
			if cmd.Flags().Changed("exit-code") {
				code := exitCode
				req.ExitCode = &code
				req.Succeeded = req.Succeeded && code == 0
			}
			res, err := container.Recorder.Record(cmd.Context(), req)
			if res.HistoryID == 0 && err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			state := "failure"
			if req.Succeeded {
				state = "success"
			}
			fmt.Fprintf(out, "Recorded %s for %q (history #%d).\n", state, args[1], res.HistoryID)
			if !res.SuggestionFound {
				fmt.Fprintln(out, "No cached suggestion matched; only history was updated.")
			}
			if res.Learned {
				fmt.Fprintf(out, "Learned under %s.\n", res.Category)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "The command did not do what was asked")
	cmd.Flags().IntVar(&exitCode, "exit-code", 0, "Exit status of the command")
	return cmd
}
