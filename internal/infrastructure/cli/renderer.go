package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/helpers"
)

// RenderSuggestions prints numbered suggestions in an ASCII-only format.
func RenderSuggestions(out io.Writer, resp domain.SuggestResponse, explain bool) {
	source := "model"
	if resp.FromCache {
		source = "cache"
	}
	fmt.Fprintf(out, "Suggestions for %q (%s, from %s):\n", resp.Prompt, resp.Category, source)
	for i, s := range resp.Suggestions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, s.Command)
		if resp.FromCache {
			fmt.Fprintf(out, "     used %d times, %s success\n", s.UseCount, helpers.FormatRate(s.SuccessRate()))
		}
		if explain && strings.TrimSpace(s.Explanation) != "" {
			fmt.Fprintf(out, "     %s\n", s.Explanation)
		}
	}
	RenderDiscarded(out, resp.Discarded)
}

// RenderDiscarded lists candidates dropped because they cannot run here.
func RenderDiscarded(out io.Writer, discarded []string) {
	if len(discarded) == 0 {
		return
	}
	fmt.Fprintln(out, "Discarded (executable not found or malformed):")
	for _, d := range discarded {
		fmt.Fprintf(out, "  - %s\n", helpers.Truncate(d, 80))
	}
}

// RenderOutcome summarises an execution and what was recorded.
func RenderOutcome(out io.Writer, res domain.ExecutionResult, outcome domain.OutcomeResult) {
	status := "succeeded"
	if res.ExitCode != 0 {
		status = fmt.Sprintf("failed (exit %d)", res.ExitCode)
	}
	fmt.Fprintf(out, "\nCommand %s in %s.", status, res.Duration.Round(time.Millisecond))
	if outcome.Learned {
		fmt.Fprintf(out, " Learned under %s.", outcome.Category)
	}
	fmt.Fprintln(out)
}
