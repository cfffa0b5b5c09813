package domain

import (
	"sort"
	"time"
)

// Well-known environment fact keys.
const (
	FactOS                = "os"
	FactArch              = "arch"
	FactShell             = "shell"
	FactTerminal          = "terminal"
	FactWorkingDir        = "pwd"
	FactAvailableTools    = "available_tools"
	FactContainerRuntime  = "container_runtime"
	FactCloudProvider     = "cloud_provider"
	FactKubernetesContext = "kubernetes_context"
	FactGitBranch         = "git_branch"
)

// EnvironmentFact is one detected property of the user's machine.
type EnvironmentFact struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	DetectedAt time.Time `json:"detected_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ContextBundle is everything handed to the generator on a cache miss.
type ContextBundle struct {
	Prompt         string
	Category       Category
	Knowledge      string
	Sections       []Section
	Environment    []EnvironmentFact
	RecentCommands []string
}

// MinimalBundle is used when context assembly fails.
func MinimalBundle(prompt string) ContextBundle {
	return ContextBundle{Prompt: prompt, Category: Categorize(prompt)}
}

// EnvironmentMap flattens facts into key/value pairs.
func (b ContextBundle) EnvironmentMap() map[string]string {
	out := make(map[string]string, len(b.Environment))
	for _, f := range b.Environment {
		out[f.Key] = f.Value
	}
	return out
}

// SortFacts orders facts by key.
func SortFacts(facts []EnvironmentFact) {
	sort.Slice(facts, func(i, j int) bool { return facts[i].Key < facts[j].Key })
}
