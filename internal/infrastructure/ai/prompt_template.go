package ai

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

const (
	maxPromptTools     = 20
	maxPromptRecent    = 5
	maxPromptExemplars = 10
)

type templateData struct {
	Prompt         string
	Category       string
	OS             string
	Shell          string
	WorkingDir     string
	Tools          string
	Environment    []domain.EnvironmentFact
	RecentCommands []string
	Exemplars      []domain.Exemplar
	Notes          []string
	MaxSuggestions int
	Explain        bool
}

var promptTemplate = template.Must(template.New("prompt").Parse(`Generate ONLY valid shell commands for: {{.Prompt}}

OS: {{or .OS "unknown"}} | Shell: {{or .Shell "unknown"}}{{if .WorkingDir}} | Directory: {{.WorkingDir}}{{end}}
AVAILABLE EXECUTABLES: {{or .Tools "basic"}}
{{- range .Environment}}
{{.Key}}: {{.Value}}
{{- end}}
{{- if .RecentCommands}}
Recent commands:
{{- range .RecentCommands}}
  {{.}}
{{- end}}
{{- end}}

Commands MUST:
1. Use only executables that exist in PATH
2. Start with a real command name
3. Use proper shell syntax
4. Be directly runnable
{{- if .Exemplars}}

LEARNED PATTERNS ({{.Category}}):
{{- range .Exemplars}}
"{{.Prompt}}" → {{.Command}}
{{- end}}
{{- end}}
{{- if .Notes}}

USER PREFERENCES:
{{- range .Notes}}
- {{.}}
{{- end}}
{{- end}}

RESPONSE FORMAT - Return JSON exactly like this:
{"commands": [{"command": "actual_command", "explanation": "{{if .Explain}}what it does and why{{else}}brief description{{end}}"}]}

Generate at most {{.MaxSuggestions}} commands in this JSON format:`))

// skipInPromptFacts are facts rendered in the header line instead of the list.
var skipInPromptFacts = map[string]bool{
	domain.FactOS:             true,
	domain.FactShell:          true,
	domain.FactWorkingDir:     true,
	domain.FactAvailableTools: true,
}

func buildTemplateData(req ports.GenerateRequest) templateData {
	b := req.Bundle
	env := b.EnvironmentMap()
	data := templateData{
		Prompt:         strings.TrimSpace(req.Prompt),
		Category:       string(b.Category),
		OS:             env[domain.FactOS],
		Shell:          env[domain.FactShell],
		WorkingDir:     env[domain.FactWorkingDir],
		Tools:          limitList(env[domain.FactAvailableTools], maxPromptTools),
		MaxSuggestions: req.MaxSuggestions,
		Explain:        req.Explain,
	}
	if data.MaxSuggestions <= 0 {
		data.MaxSuggestions = domain.DefaultMaxSuggestions
	}
	for _, f := range b.Environment {
		if !skipInPromptFacts[f.Key] && f.Value != "" {
			data.Environment = append(data.Environment, f)
		}
	}
	if len(b.RecentCommands) > maxPromptRecent {
		data.RecentCommands = b.RecentCommands[:maxPromptRecent]
	} else {
		data.RecentCommands = b.RecentCommands
	}
	for _, s := range b.Sections {
		data.Notes = append(data.Notes, s.Notes...)
		for i := len(s.Exemplars) - 1; i >= 0 && len(data.Exemplars) < maxPromptExemplars; i-- {
			data.Exemplars = append(data.Exemplars, s.Exemplars[i])
		}
	}
	return data
}

func renderPrompt(req ports.GenerateRequest) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, buildTemplateData(req)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func limitList(csv string, max int) string {
	if csv == "" {
		return ""
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
		if len(out) == max {
			break
		}
	}
	return strings.Join(out, ", ")
}
