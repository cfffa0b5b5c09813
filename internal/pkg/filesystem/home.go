// Package filesystem holds path helpers shared by the config loader and the
// shell history importer.
package filesystem

import (
	"os"
	"path/filepath"
	"strings"
)

// UserHomeDir returns the current user's home directory, or "." when it
// cannot be determined.
func UserHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// ExpandHome replaces a leading "~" with home. An empty home leaves path as is.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// ExpandPath expands "~" against the current user and cleans the result.
func ExpandPath(path string) string {
	return filepath.Clean(ExpandHome(path, UserHomeDir()))
}
