package helpers

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phloem-sh/phloem/internal/domain"
)

func TestPromptForChoice(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"\n", 1},
		{"2\n", 2},
		{"9\n", 0},
		{"two\n", 0},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		got := PromptForChoice(&out, bufio.NewReader(strings.NewReader(tc.input)), "Run which", 1, 3)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.Contains(t, out.String(), "[1-3, default 1]")
	}
}

func TestPromptForYesNo(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, PromptForYesNo(&out, bufio.NewReader(strings.NewReader("yes\n")), "Run?", false))
	assert.False(t, PromptForConfirmation(&out, bufio.NewReader(strings.NewReader("\n")), "Run?"))
	assert.True(t, PromptForYesNo(&out, bufio.NewReader(strings.NewReader("")), "Run?", true))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("docker")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDocker, c)

	c, err = ParseCategory("file management")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryFiles, c)

	c, err = ParseCategory("general")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryUnclassified, c)

	_, err = ParseCategory("cooking")
	assert.ErrorContains(t, err, `"Docker"`)
	assert.ErrorContains(t, err, `"General"`)
}

func TestFormatting(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "2 hours ago", FormatAge(now.Add(-2*time.Hour), now))
	assert.Equal(t, "80%", FormatRate(0.8))
	assert.Equal(t, "docker...", Truncate("docker ps -a", 9))
	assert.Equal(t, "ls", Truncate("ls", 9))
}

func TestCalculateTopCommands(t *testing.T) {
	got := CalculateTopCommands(map[string]int{"git": 3, "docker": 3, "ls": 1}, 2)
	assert.Equal(t, []CommandStatistic{{"docker", 3}, {"git", 3}}, got)
}
