package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *OllamaGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaGenerator(Options{Endpoint: srv.URL + "/", Model: "test-model", Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerateSendsPromptAndParsesCommands(t *testing.T) {
	var got generateRequest
	gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, generateResponse{
			Model:    "test-model",
			Response: `{"commands":[{"command":"docker ps -a","explanation":"all containers"},{"command":"rm -rf /","explanation":"no"},{"command":"docker ps","explanation":"running"},{"command":"podman ps","explanation":"extra"}]}`,
			Done:     true,
		})
	})

	resp, err := gen.Generate(context.Background(), ports.GenerateRequest{
		Prompt: "list containers",
		Bundle: domain.ContextBundle{
			Category: domain.CategoryDocker,
			Environment: []domain.EnvironmentFact{
				{Key: domain.FactOS, Value: "linux"},
				{Key: domain.FactShell, Value: "zsh"},
				{Key: domain.FactContainerRuntime, Value: "docker"},
			},
			RecentCommands: []string{"docker images"},
			Sections: []domain.Section{{
				Name:      domain.CategoryDocker,
				Exemplars: []domain.Exemplar{{Prompt: "show images", Command: "docker images"}},
				Notes:     []string{"prefer long flags"},
			}},
		},
		MaxSuggestions: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, "json", got.Format)
	assert.Contains(t, got.Prompt, "list containers")
	assert.Contains(t, got.Prompt, "OS: linux | Shell: zsh")
	assert.Contains(t, got.Prompt, "container_runtime: docker")
	assert.Contains(t, got.Prompt, `"show images" → docker images`)
	assert.Contains(t, got.Prompt, "- prefer long flags")
	assert.Contains(t, got.Prompt, "at most 2 commands")

	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, "docker ps -a", resp.Candidates[0].Command)
	assert.Equal(t, "all containers", resp.Candidates[0].Explanation)
	assert.Equal(t, domain.FallbackConfidence, resp.Candidates[0].Confidence)
	assert.Equal(t, "docker ps", resp.Candidates[1].Command)
	assert.NotEmpty(t, resp.Raw)
}

func TestGenerateReportsHTTPErrors(t *testing.T) {
	gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "test-model" not found`, http.StatusNotFound)
	})
	_, err := gen.Generate(context.Background(), ports.GenerateRequest{Prompt: "list files"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "not found")
}

func TestGenerateHonoursContext(t *testing.T) {
	gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := gen.Generate(ctx, ports.GenerateRequest{Prompt: "list files"})
	assert.Error(t, err)
}

func TestVersionAndModels(t *testing.T) {
	gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			writeJSON(w, map[string]string{"version": "0.5.7"})
		case "/api/tags":
			writeJSON(w, map[string]interface{}{"models": []map[string]string{{"name": "gemma3n:e2b"}, {"name": "llama3"}}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	v, err := gen.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.5.7", v)

	models, err := gen.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gemma3n:e2b", "llama3"}, models)
	assert.Equal(t, "test-model", gen.Model())
}

func TestVersionUnavailable(t *testing.T) {
	gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := gen.Version(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewOllamaGeneratorDefaults(t *testing.T) {
	gen := NewOllamaGenerator(Options{})
	assert.Equal(t, domain.DefaultGeneratorModel, gen.Model())
	assert.Equal(t, domain.DefaultGeneratorEndpoint, gen.client.BaseURL)
	assert.Equal(t, domain.DefaultGeneratorTimeout, gen.client.GetClient().Timeout)
}

func TestParseCandidatesTextFallback(t *testing.T) {
	raw := strings.Join([]string{
		"Here are some options:",
		"# comment",
		"```bash",
		"find . -name '*.go'",
		"```",
		"$ du -sh .",
		"mkfs.ext4 /dev/sda1",
		"ls -la | sort",
		"this sentence mentions nothing runnable",
	}, "\n")
	got := parseCandidates(raw, 5)
	require.Len(t, got, 3)
	assert.Equal(t, "find . -name '*.go'", got[0].Command)
	assert.Equal(t, "du -sh .", got[1].Command)
	assert.Equal(t, "ls -la | sort", got[2].Command)
	for _, c := range got {
		assert.Equal(t, textFallbackConfidence, c.Confidence)
		assert.Empty(t, c.Explanation)
	}
}

func TestParseCandidatesJSON(t *testing.T) {
	t.Run("wrapped in prose", func(t *testing.T) {
		got := parseCandidates("Sure! {\"commands\":[{\"command\":\"git status\",\"explanation\":\"state\"}]} done", 3)
		require.Len(t, got, 1)
		assert.Equal(t, "git status", got[0].Command)
	})
	t.Run("explicit confidence", func(t *testing.T) {
		got := parseCandidates(`{"commands":[{"command":"git log","explanation":"","confidence":0.95}]}`, 3)
		require.Len(t, got, 1)
		assert.Equal(t, 0.95, got[0].Confidence)
	})
	t.Run("all rejected falls back to text", func(t *testing.T) {
		got := parseCandidates(`{"commands":[{"command":"dd if=/dev/zero of=/dev/sda","explanation":""}]}`, 3)
		assert.Empty(t, got)
	})
	t.Run("limit", func(t *testing.T) {
		got := parseCandidates(`{"commands":[{"command":"ls"},{"command":"ls -a"},{"command":"ls -l"}]}`, 2)
		assert.Len(t, got, 2)
	})
}

func TestLimitList(t *testing.T) {
	assert.Equal(t, "a, b", limitList("a, b,,c", 2))
	assert.Equal(t, "", limitList("", 3))
}
