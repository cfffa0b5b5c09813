package cli

import (
	"bufio"
	"fmt"
	"io"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/helpers"
)

// Prompter asks the user which suggestion to run.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter constructs a prompter over the given streams.
func NewPrompter(in *bufio.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

// Select returns the chosen suggestion. With a single suggestion or
// assumeFirst the first one is chosen without asking.
func (p *Prompter) Select(suggestions []domain.Suggestion, assumeFirst bool) (domain.Suggestion, bool) {
	switch {
	case len(suggestions) == 0:
		return domain.Suggestion{}, false
	case len(suggestions) == 1 || assumeFirst:
		return suggestions[0], true
	}
	n := helpers.PromptForChoice(p.out, p.in, "Run which suggestion", 1, len(suggestions))
	if n == 0 {
		return domain.Suggestion{}, false
	}
	return suggestions[n-1], true
}

// Confirm asks before running command.
func (p *Prompter) Confirm(command string) bool {
	fmt.Fprintf(p.out, "Command:\n  %s\n", command)
	return helpers.PromptForYesNo(p.out, p.in, "Run it?", true)
}
