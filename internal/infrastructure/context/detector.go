// Package contextcollector detects facts about the local machine that help
// the generator pick commands which actually work here.
package contextcollector

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// defaultTools is probed in order; the first MaxDetectedTools hits are kept.
var defaultTools = []string{
	"git", "docker", "kubectl", "podman", "npm", "yarn", "pnpm", "python3", "python", "pip",
	"go", "cargo", "node", "make", "curl", "wget", "jq", "yq", "rsync", "ssh",
	"tar", "zip", "unzip", "awk", "sed", "grep", "find", "htop", "lsof", "psql", "mysql",
}

// Detector implements ports.EnvironmentDetector.
type Detector struct {
	Tools    []string
	MaxTools int

	lookPath func(string) (string, error)
	getenv   func(string) string
	getwd    func() (string, error)
	home     func() (string, error)
	exists   func(string) bool
	run      func(ctx context.Context, dir, name string, args ...string) string
	goos     string
	goarch   string
}

// NewDetector probes the real host.
func NewDetector() *Detector {
	return &Detector{
		Tools:    defaultTools,
		MaxTools: domain.MaxDetectedTools,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		getwd:    os.Getwd,
		home:     os.UserHomeDir,
		exists:   pathExists,
		run:      runCmd,
		goos:     runtime.GOOS,
		goarch:   runtime.GOARCH,
	}
}

// Detect gathers facts. Probes that fail simply leave their key out.
func (d *Detector) Detect(ctx context.Context) (map[string]string, error) {
	facts := map[string]string{
		domain.FactOS:   d.goos,
		domain.FactArch: d.goarch,
	}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			facts[key] = value
		}
	}

	if shell := d.getenv("SHELL"); shell != "" {
		set(domain.FactShell, filepath.Base(shell))
	}
	set(domain.FactTerminal, d.getenv("TERM"))
	wd, _ := d.getwd()
	set(domain.FactWorkingDir, wd)

	tools := d.detectTools()
	set(domain.FactAvailableTools, strings.Join(tools, ","))
	set(domain.FactContainerRuntime, d.containerRuntime(ctx))
	set(domain.FactCloudProvider, d.cloudProvider())
	if d.has("kubectl") {
		set(domain.FactKubernetesContext, d.run(ctx, "", "kubectl", "config", "current-context"))
	}
	if wd != "" && d.has("git") && d.exists(filepath.Join(wd, ".git")) {
		set(domain.FactGitBranch, d.run(ctx, wd, "git", "rev-parse", "--abbrev-ref", "HEAD"))
	}
	return facts, ctx.Err()
}

func (d *Detector) has(tool string) bool {
	_, err := d.lookPath(tool)
	return err == nil
}

func (d *Detector) detectTools() []string {
	limit := d.MaxTools
	if limit <= 0 {
		limit = domain.MaxDetectedTools
	}
	var available []string
	for _, tool := range d.Tools {
		if len(available) == limit {
			break
		}
		if d.has(tool) {
			available = append(available, tool)
		}
	}
	return available
}

func (d *Detector) containerRuntime(ctx context.Context) string {
	if d.has("docker") && d.run(ctx, "", "docker", "info", "--format", "{{.ServerVersion}}") != "" {
		return "docker"
	}
	if d.has("podman") {
		return "podman"
	}
	return ""
}

func (d *Detector) cloudProvider() string {
	if d.getenv("AWS_PROFILE") != "" || d.getenv("AWS_DEFAULT_REGION") != "" {
		return "aws"
	}
	if d.getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		return "gcp"
	}
	home, err := d.home()
	if err != nil || home == "" {
		return ""
	}
	switch {
	case d.exists(filepath.Join(home, ".aws")):
		return "aws"
	case d.exists(filepath.Join(home, ".config", "gcloud")):
		return "gcp"
	case d.exists(filepath.Join(home, ".azure")):
		return "azure"
	}
	return ""
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func runCmd(ctx context.Context, dir string, name string, args ...string) string {
	cctx, cancel := context.WithTimeout(ctx, domain.DefaultCommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var _ ports.EnvironmentDetector = (*Detector)(nil)
