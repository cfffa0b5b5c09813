// Package ai talks to a local Ollama server to turn prompts and context
// bundles into candidate shell commands.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Options configures an OllamaGenerator.
type Options struct {
	Endpoint    string
	Model       string
	Timeout     time.Duration
	Temperature float64
	Logger      ports.Logger
}

// OllamaGenerator implements ports.Generator and ports.GeneratorProbe over
// the Ollama HTTP API.
type OllamaGenerator struct {
	client      *resty.Client
	model       string
	temperature float64
	logger      ports.Logger
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type versionResponse struct {
	Version string `json:"version"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaGenerator builds a generator with its own HTTP client.
func NewOllamaGenerator(opts Options) *OllamaGenerator {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = domain.DefaultGeneratorEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultGeneratorTimeout
	}
	model := opts.Model
	if model == "" {
		model = domain.DefaultGeneratorModel
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &OllamaGenerator{
		client:      client,
		model:       model,
		temperature: opts.Temperature,
		logger:      opts.Logger,
	}
}

// Generate renders the prompt, calls /api/generate and parses the reply.
func (g *OllamaGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResponse, error) {
	prompt, err := renderPrompt(req)
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("render prompt: %w", err)
	}
	limit := req.MaxSuggestions
	if limit <= 0 {
		limit = domain.DefaultMaxSuggestions
	}

	var out generateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:  g.model,
			Prompt: prompt,
			Format: "json",
			Options: map[string]interface{}{
				"temperature": g.temperature,
				"top_k":       40,
				"top_p":       0.9,
				"num_predict": 200,
			},
		}).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("ollama generate: %w", err)
	}
	if resp.IsError() {
		return ports.GenerateResponse{}, fmt.Errorf("ollama generate: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}

	candidates := parseCandidates(out.Response, limit)
	if g.logger != nil {
		g.logger.Debug("ollama responded", map[string]interface{}{
			"model":        g.model,
			"prompt_bytes": len(prompt),
			"candidates":   len(candidates),
			"duration_ms":  resp.Time().Milliseconds(),
		})
	}
	return ports.GenerateResponse{Raw: out.Response, Candidates: candidates}, nil
}

// Version returns the server version from /api/version.
func (g *OllamaGenerator) Version(ctx context.Context) (string, error) {
	var out versionResponse
	resp, err := g.client.R().SetContext(ctx).SetResult(&out).Get("/api/version")
	if err != nil {
		return "", fmt.Errorf("ollama version: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama version: %s", resp.Status())
	}
	if out.Version == "" {
		return "", errors.New("ollama version: empty response")
	}
	return out.Version, nil
}

// Models lists installed models from /api/tags.
func (g *OllamaGenerator) Models(ctx context.Context) ([]string, error) {
	var out tagsResponse
	resp, err := g.client.R().SetContext(ctx).SetResult(&out).Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("ollama models: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama models: %s", resp.Status())
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Model is the configured model name.
func (g *OllamaGenerator) Model() string { return g.model }

var (
	_ ports.Generator      = (*OllamaGenerator)(nil)
	_ ports.GeneratorProbe = (*OllamaGenerator)(nil)
)
