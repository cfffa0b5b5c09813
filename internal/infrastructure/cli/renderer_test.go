package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/phloem-sh/phloem/internal/domain"
)

func TestRenderSuggestionsFromCache(t *testing.T) {
	var buf bytes.Buffer
	RenderSuggestions(&buf, domain.SuggestResponse{
		Prompt:    "show branches",
		Category:  domain.CategoryGit,
		FromCache: true,
		Suggestions: []domain.Suggestion{
			{Command: "git branch -a", Explanation: "all branches", UseCount: 4, SuccessCount: 3},
		},
	}, true)

	out := buf.String()
	assert.Contains(t, out, `Suggestions for "show branches" (Git, from cache):`)
	assert.Contains(t, out, "1. git branch -a")
	assert.Contains(t, out, "used 4 times, 75% success")
	assert.Contains(t, out, "all branches")
}

func TestRenderSuggestionsFromModelHidesStats(t *testing.T) {
	var buf bytes.Buffer
	RenderSuggestions(&buf, domain.SuggestResponse{
		Prompt:      "list files",
		Category:    domain.CategoryFiles,
		Suggestions: []domain.Suggestion{{Command: "ls -la", Explanation: "long listing"}},
		Discarded:   []string{"exa --long"},
	}, false)

	out := buf.String()
	assert.Contains(t, out, "from model")
	assert.NotContains(t, out, "used ")
	assert.NotContains(t, out, "long listing")
	assert.Contains(t, out, "- exa --long")
}

func TestRenderOutcome(t *testing.T) {
	var buf bytes.Buffer
	RenderOutcome(&buf,
		domain.ExecutionResult{Ran: true, ExitCode: 2, Duration: 1234567 * time.Microsecond},
		domain.OutcomeResult{})
	assert.Contains(t, buf.String(), "failed (exit 2) in 1.235s")

	buf.Reset()
	RenderOutcome(&buf,
		domain.ExecutionResult{Ran: true},
		domain.OutcomeResult{Learned: true, Category: domain.CategoryDocker})
	assert.Contains(t, buf.String(), "succeeded")
	assert.Contains(t, buf.String(), "Learned under Docker.")
}

func TestPrompterSelect(t *testing.T) {
	suggestions := []domain.Suggestion{{Command: "ls"}, {Command: "ls -a"}, {Command: "ls -l"}}

	cases := []struct {
		name   string
		input  string
		first  bool
		want   string
		wantOK bool
	}{
		{"default", "\n", false, "ls", true},
		{"explicit", "3\n", false, "ls -l", true},
		{"out of range", "9\n", false, "", false},
		{"assume first", "", true, "ls", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(bufio.NewReader(strings.NewReader(tc.input)), &out)
			got, ok := p.Select(suggestions, tc.first)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got.Command)
		})
	}
}

func TestPrompterSelectSingleDoesNotAsk(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(bufio.NewReader(strings.NewReader("")), &out)
	got, ok := p.Select([]domain.Suggestion{{Command: "pwd"}}, false)
	assert.True(t, ok)
	assert.Equal(t, "pwd", got.Command)
	assert.Empty(t, out.String())
}

func TestPrompterConfirm(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(bufio.NewReader(strings.NewReader("n\n")), &out)
	assert.False(t, p.Confirm("rm build.log"))
	assert.Contains(t, out.String(), "rm build.log")
}

func TestSpinnerNoopWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "thinking...")
	s.Start()
	s.Stop()
	assert.Empty(t, buf.String())
}
