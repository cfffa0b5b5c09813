package shellhistory

import (
	"path/filepath"
	"strings"

	"github.com/phloem-sh/phloem/internal/pkg/filesystem"
)

// Format identifies a history file layout.
type Format string

const (
	FormatBash  Format = "bash"
	FormatZsh   Format = "zsh"
	FormatPlain Format = "plain"
)

// Source is one history file.
type Source struct {
	Path   string
	Format Format
}

// FormatForPath guesses the layout from the file name.
func FormatForPath(path string) Format {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, "zsh"):
		return FormatZsh
	case strings.Contains(base, "bash"):
		return FormatBash
	default:
		return FormatPlain
	}
}

// DetectSources resolves history files. Explicit paths win; otherwise
// $HISTFILE, then the history file of the shell named by $SHELL.
func DetectSources(configured []string, getenv func(string) string, home string) []Source {
	var paths []string
	if len(configured) > 0 {
		for _, p := range configured {
			paths = append(paths, filesystem.ExpandHome(p, home))
		}
	} else {
		if hf := strings.TrimSpace(getenv("HISTFILE")); hf != "" {
			paths = append(paths, filesystem.ExpandHome(hf, home))
		}
		if home != "" {
			shell := filepath.Base(getenv("SHELL"))
			switch {
			case strings.Contains(shell, "zsh"):
				paths = append(paths, filepath.Join(home, ".zsh_history"))
			case strings.Contains(shell, "bash"):
				paths = append(paths, filepath.Join(home, ".bash_history"))
			}
		}
	}

	seen := make(map[string]struct{}, len(paths))
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		sources = append(sources, Source{Path: clean, Format: FormatForPath(clean)})
	}
	return sources
}
