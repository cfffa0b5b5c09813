// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). The engine packages under internal/application depend
// only on these interfaces, so the SQLite store, the knowledge document manager,
// the shell history importer and the model client can be replaced in tests.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., SuggestionStore, KnowledgeManager)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.phloem/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// SuggestionStore persists generated suggestions and their usage statistics.
type SuggestionStore interface {
	UpsertSuggestion(ctx context.Context, prompt string, candidate domain.Candidate) (domain.Suggestion, error)
	RecordUsage(ctx context.Context, prompt, command string, succeeded bool) (bool, error)
	QueryEligible(ctx context.Context, prompt string, policy domain.CachePolicy, now time.Time) (domain.Suggestion, bool, error)
}

// CacheInspector reports suggestion store statistics.
type CacheInspector interface {
	Stats(ctx context.Context, policy domain.CachePolicy) (domain.CacheStats, error)
}

// HistoryRepository persists executed commands.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, record domain.HistoryRecord) (int64, error)
	ListRecentHistory(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	SearchHistory(ctx context.Context, query string, limit int) ([]domain.HistoryRecord, error)
	PruneHistory(ctx context.Context, maxAgeDays, maxCount int) (int64, error)
	ExportHistory(ctx context.Context, w io.Writer) (int, error)
}

// HistoryPruner enforces history retention after a write.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, maxAgeDays, maxCount int) (int64, error)
}

// EnvironmentRepository persists detected environment facts.
type EnvironmentRepository interface {
	UpsertEnvironmentFacts(ctx context.Context, facts map[string]string) error
	EnvironmentFacts(ctx context.Context) ([]domain.EnvironmentFact, error)
}

// ContextStore is the read side used by the context assembler.
type ContextStore interface {
	ListRecentHistory(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	EnvironmentFacts(ctx context.Context) ([]domain.EnvironmentFact, error)
}

// OutcomeParams describes one usage outcome committed atomically.
type OutcomeParams struct {
	Prompt    string
	Command   string
	Succeeded bool
	ExitCode  *int
}

// OutcomeStore commits usage statistics and history in one transaction.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, params OutcomeParams) (domain.OutcomeResult, error)
}

// KnowledgeReader exposes the knowledge document to the assembler.
type KnowledgeReader interface {
	Load(ctx context.Context) (domain.Document, error)
	Read(ctx context.Context) (string, error)
}

// KnowledgeWriter learns from successful outcomes.
type KnowledgeWriter interface {
	RecordSuccess(ctx context.Context, category domain.Category, prompt, command string) error
}

// KnowledgeManager is the full document manager surface used by the CLI.
type KnowledgeManager interface {
	KnowledgeReader
	KnowledgeWriter
	AddNote(ctx context.Context, category domain.Category, note string) error
	Clear(ctx context.Context) error
	Backups() ([]string, error)
	Path() string
}

// ShellHistorySource lazily yields shell history commands, most recent first.
type ShellHistorySource interface {
	Commands() iter.Seq[string]
}

// SuggestionLookup serves proven suggestions from the cache.
type SuggestionLookup interface {
	Lookup(ctx context.Context, prompt string) (domain.Suggestion, bool, error)
}

// ContextAssembler builds the bundle handed to the generator. The returned
// bundle is usable even when an error reports a degraded source.
type ContextAssembler interface {
	Build(ctx context.Context, prompt string) (domain.ContextBundle, error)
}

// OutcomeRecorder records what happened after a suggestion was acted on.
type OutcomeRecorder interface {
	Record(ctx context.Context, req domain.OutcomeRequest) (domain.OutcomeResult, error)
}

// GenerateRequest is everything the generator needs for one call.
type GenerateRequest struct {
	Prompt         string
	Bundle         domain.ContextBundle
	MaxSuggestions int
	Explain        bool
}

// GenerateResponse keeps the raw model text next to the parsed candidates.
type GenerateResponse struct {
	Raw        string
	Candidates []domain.Candidate
}

// Generator turns a prompt and a context bundle into candidate commands.
type Generator interface {
	Generate(context.Context, GenerateRequest) (GenerateResponse, error)
}

// GeneratorProbe reports whether the generator endpoint is reachable.
type GeneratorProbe interface {
	Version(context.Context) (string, error)
	Models(context.Context) ([]string, error)
}

// ExecutableChecker reports whether a command's executable exists.
type ExecutableChecker interface {
	Exists(name string) bool
}

// CommandExecutor runs shell commands in the configured shell environment.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (domain.ExecutionResult, error)
}

// EnvironmentDetector gathers OS, shell and tooling facts.
type EnvironmentDetector interface {
	Detect(context.Context) (map[string]string, error)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
