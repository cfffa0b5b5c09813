// Package executor runs selected suggestions and checks that their
// executables exist.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// waitDelay bounds how long output pipes are drained after a cancelled
// command is killed.
const waitDelay = 500 * time.Millisecond

// LocalExecutor runs commands on the host shell.
type LocalExecutor struct {
	shell  string
	stdout io.Writer
	stderr io.Writer
}

// NewLocalExecutor builds a new executor. An empty or "auto" shell resolves
// to $SHELL and then /bin/sh. Output is captured and, when the writers are
// non-nil, streamed to them as well.
func NewLocalExecutor(shell string, stdout, stderr io.Writer) *LocalExecutor {
	if shell == "" || shell == "auto" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &LocalExecutor{shell: shell, stdout: stdout, stderr: stderr}
}

// Shell is the resolved shell binary.
func (e *LocalExecutor) Shell() string { return e.shell }

// Execute implements ports.CommandExecutor. A non-zero exit is reported in the
// result, not as an error; the error is reserved for commands that could not
// be started or were cancelled.
func (e *LocalExecutor) Execute(ctx context.Context, command string) (domain.ExecutionResult, error) {
	c := exec.CommandContext(ctx, e.shell, "-c", command)
	var stdout, stderr bytes.Buffer
	c.Stdout = tee(&stdout, e.stdout)
	c.Stderr = tee(&stderr, e.stderr)
	c.Stdin = os.Stdin
	c.WaitDelay = waitDelay

	start := time.Now()
	err := c.Run()
	result := domain.ExecutionResult{
		Ran:      true,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		result.ExitCode = -1
		result.Err = ctx.Err()
		return result, ctx.Err()
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Err = err
		return result, nil
	default:
		result.Ran = false
		result.ExitCode = -1
		result.Err = err
		return result, err
	}
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

// PathChecker resolves executables against $PATH, accepting shell builtins.
type PathChecker struct {
	lookPath func(string) (string, error)
}

// NewPathChecker returns a checker backed by exec.LookPath.
func NewPathChecker() *PathChecker {
	return &PathChecker{lookPath: exec.LookPath}
}

// Exists implements ports.ExecutableChecker.
func (p *PathChecker) Exists(name string) bool {
	if name == "" {
		return false
	}
	if domain.IsShellBuiltin(name) {
		return true
	}
	_, err := p.lookPath(name)
	return err == nil
}

var (
	_ ports.CommandExecutor   = (*LocalExecutor)(nil)
	_ ports.ExecutableChecker = (*PathChecker)(nil)
)
