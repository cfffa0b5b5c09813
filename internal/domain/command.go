package domain

import (
	"path/filepath"
	"strings"
)

var commandPrefixes = map[string]bool{
	"sudo": true, "doas": true, "env": true, "nohup": true, "time": true, "command": true, "exec": true,
}

var shellBuiltins = map[string]bool{
	"cd": true, "export": true, "alias": true, "source": true, ".": true, "echo": true,
	"set": true, "unset": true, "history": true, "type": true, "pwd": true, "exit": true,
	"eval": true, "read": true, "test": true, "[": true, "ulimit": true, "umask": true,
	"jobs": true, "fg": true, "bg": true, "wait": true, "printf": true, "true": true, "false": true,
}

// ExtractExecutable returns the program a command line runs, skipping
// wrappers like sudo and leading VAR=value assignments.
func ExtractExecutable(command string) string {
	for _, field := range strings.Fields(command) {
		if commandPrefixes[field] || strings.HasPrefix(field, "-") {
			continue
		}
		if isAssignment(field) {
			continue
		}
		return filepath.Base(strings.Trim(field, `"'`))
	}
	return ""
}

// IsShellBuiltin reports whether name is provided by the shell itself.
func IsShellBuiltin(name string) bool {
	return shellBuiltins[name]
}

func isAssignment(field string) bool {
	eq := strings.IndexByte(field, '=')
	if eq <= 0 {
		return false
	}
	for _, r := range field[:eq] {
		if !(r == '_' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// SanitizeCommand strips NUL bytes and surrounding noise and rejects commands
// that are empty, too long, or have unbalanced quotes or parentheses.
func SanitizeCommand(command string) (string, bool) {
	command = strings.ReplaceAll(command, "\x00", "")
	command = strings.TrimSpace(command)
	command = strings.TrimPrefix(command, "$ ")
	command = strings.Trim(command, "`")
	command = strings.TrimSpace(command)
	if command == "" || len(command) > MaxCommandLength {
		return "", false
	}
	if !balanced(command) {
		return "", false
	}
	return command, true
}

func balanced(command string) bool {
	var single, double bool
	depth := 0
	escaped := false
	for _, r := range command {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case r == '\\' && !single:
			escaped = true
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case r == '(' && !single && !double:
			depth++
		case r == ')' && !single && !double:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return !single && !double && depth == 0
}
