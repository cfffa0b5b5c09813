// Package helpers holds small formatting and prompting utilities shared by
// the CLI commands.
package helpers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/phloem-sh/phloem/internal/app"
	configapp "github.com/phloem-sh/phloem/internal/application/config"
	"github.com/phloem-sh/phloem/internal/domain"
	configinfra "github.com/phloem-sh/phloem/internal/infrastructure/config"
)

// ====================================================================================
// Config Helpers
// ====================================================================================

// GetConfigLoader retrieves the config loader from the container
func GetConfigLoader(container *app.Container) (*configinfra.FileLoader, error) {
	if container.ConfigLoader == nil {
		return nil, errors.New("config loader unavailable")
	}
	return container.ConfigLoader, nil
}

// SaveConfigWithValidation validates and saves the configuration, keeping a
// backup of the previous file.
func SaveConfigWithValidation(loader *configinfra.FileLoader, cfg domain.Config) error {
	if err := configapp.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := loader.Backup(); err != nil {
		return fmt.Errorf("backup config: %w", err)
	}
	return loader.Save(cfg)
}

// ParseCategory matches a category name case-insensitively, including the
// "General" fallback section.
func ParseCategory(name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	known := append(domain.Categories(), domain.CategoryUnclassified)
	for _, c := range known {
		if strings.EqualFold(string(c), name) {
			return c, nil
		}
	}
	names := make([]string, 0, len(known))
	for _, c := range known {
		names = append(names, strconv.Quote(string(c)))
	}
	return "", fmt.Errorf("unknown category %q (one of %s)", name, strings.Join(names, ", "))
}

// ====================================================================================
// Prompt Helpers
// ====================================================================================

// PromptForChoice asks for a number between 1 and max. Empty input selects
// def; anything unparseable or out of range returns 0.
func PromptForChoice(out io.Writer, reader *bufio.Reader, promptText string, def, max int) int {
	fmt.Fprintf(out, "%s [1-%d, default %d]: ", promptText, max, def)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > max {
		return 0
	}
	return n
}

// PromptForYesNo prompts the user for a yes/no question
// Returns true for yes, false for no, or the default value if no input
func PromptForYesNo(out io.Writer, reader *bufio.Reader, promptText string, defaultValue bool) bool {
	label := buildYesNoLabel(defaultValue)
	fmt.Fprintf(out, "%s [%s]: ", promptText, label)

	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))

	if line == "" {
		return defaultValue
	}

	return isAffirmativeResponse(line)
}

// PromptForConfirmation asks the user to confirm an action
// Returns true if the user confirms, false otherwise
func PromptForConfirmation(out io.Writer, reader *bufio.Reader, question string) bool {
	return PromptForYesNo(out, reader, question, false)
}

func buildYesNoLabel(defaultIsYes bool) string {
	if defaultIsYes {
		return "Y/n"
	}
	return "y/N"
}

func isAffirmativeResponse(response string) bool {
	return response == "y" || response == "yes"
}

// ====================================================================================
// Formatting Helpers
// ====================================================================================

// FormatAge renders a timestamp relative to now, or "never" for the zero time.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatRate renders a ratio as a percentage.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// ====================================================================================
// Stats Helpers
// ====================================================================================

// CommandStatistic represents usage statistics for a command
type CommandStatistic struct {
	Command string
	Count   int
}

// CalculateTopCommands returns the top N most frequently used commands
// If limit is 0 or negative, returns all commands
func CalculateTopCommands(commandFrequency map[string]int, limit int) []CommandStatistic {
	stats := make([]CommandStatistic, 0, len(commandFrequency))
	for cmd, count := range commandFrequency {
		stats = append(stats, CommandStatistic{Command: cmd, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count == stats[j].Count {
			return stats[i].Command < stats[j].Command
		}
		return stats[i].Count > stats[j].Count
	})
	if limit > 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}
