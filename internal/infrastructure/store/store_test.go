package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
}

func openTestStore(t *testing.T, path string, clock *fakeClock) *Store {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "cache", "suggestions.db")
	}
	opts := Options{Path: path}
	if clock != nil {
		opts.Clock = clock.Now
	}
	s, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t, "", nil)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
}

func TestUpsertPreservesCounts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "", newClock())

	created, err := s.UpsertSuggestion(ctx, "list running containers", domain.Candidate{Command: "docker ps", Confidence: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 0, created.UseCount)
	assert.Equal(t, domain.NeutralSuccessRate, created.SuccessRate())

	for i := 0; i < 3; i++ {
		found, err := s.RecordUsage(ctx, "list running containers", "docker ps", i != 1)
		require.NoError(t, err)
		require.True(t, found)
	}

	updated, err := s.UpsertSuggestion(ctx, "List Running  Containers", domain.Candidate{Command: "docker ps", Explanation: "lists containers", Confidence: 1.7})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.UseCount)
	assert.Equal(t, 2, updated.SuccessCount)
	assert.Equal(t, "lists containers", updated.Explanation)
	assert.Equal(t, 1.0, updated.Confidence)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	all, err := s.SuggestionsForPrompt(ctx, "list running containers")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordUsageUnknownPair(t *testing.T) {
	s := openTestStore(t, "", nil)
	found, err := s.RecordUsage(context.Background(), "nothing", "true", true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueryEligibleWindows(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := openTestStore(t, "", clock)
	policy := domain.DefaultCachePolicy()

	_, err := s.UpsertSuggestion(ctx, "list running containers", domain.Candidate{Command: "docker ps -a", Confidence: 0.9})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.RecordUsage(ctx, "list running containers", "docker ps -a", true)
		require.NoError(t, err)
	}
	_, ok, err := s.QueryEligible(ctx, "list running containers", policy, clock.Now())
	require.NoError(t, err)
	assert.False(t, ok, "four uses must not be eligible")

	_, err = s.RecordUsage(ctx, "list running containers", "docker ps -a", true)
	require.NoError(t, err)
	hit, ok, err := s.QueryEligible(ctx, "list running containers", policy, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "docker ps -a", hit.Command)
	assert.Equal(t, 1.0, hit.SuccessRate())

	clock.Advance(8 * 24 * time.Hour)
	_, err = s.RecordUsage(ctx, "list running containers", "docker ps -a", true)
	require.NoError(t, err)
	_, ok, err = s.QueryEligible(ctx, "list running containers", policy, clock.Now())
	require.NoError(t, err)
	assert.False(t, ok, "age is measured from creation, not last use")
}

func TestQueryEligibleRanksByScore(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := openTestStore(t, "", clock)
	prompt := "show disk usage"

	_, err := s.UpsertSuggestion(ctx, prompt, domain.Candidate{Command: "du -sh .", Confidence: 0.5})
	require.NoError(t, err)
	_, err = s.UpsertSuggestion(ctx, prompt, domain.Candidate{Command: "df -h", Confidence: 0.9})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err = s.RecordUsage(ctx, prompt, "du -sh .", i < 8)
		require.NoError(t, err)
		_, err = s.RecordUsage(ctx, prompt, "df -h", true)
		require.NoError(t, err)
	}

	hit, ok, err := s.QueryEligible(ctx, prompt, domain.DefaultCachePolicy(), clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "df -h", hit.Command)
}

func TestHistoryOrderingAndSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := openTestStore(t, "", clock)

	zero := 0
	for i, cmd := range []string{"git status", "git log", "git diff"} {
		_, err := s.AppendHistory(ctx, domain.HistoryRecord{
			Command:  cmd,
			Success:  true,
			ExitCode: &zero,
			Snapshot: domain.Snapshot{
				"shell": domain.StringValue("zsh"),
				"step":  domain.IntValue(int64(i)),
				"tty":   domain.BoolValue(true),
				"load":  domain.FloatValue(0.5),
			},
		})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	records, err := s.ListRecentHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "git diff", records[0].Command)
	assert.Equal(t, "git log", records[1].Command)
	require.NotNil(t, records[0].ExitCode)
	assert.Equal(t, 0, *records[0].ExitCode)
	assert.Equal(t, domain.IntValue(2), records[0].Snapshot["step"])
	assert.Equal(t, domain.FloatValue(0.5), records[0].Snapshot["load"])

	found, err := s.SearchHistory(ctx, "log", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "git log", found[0].Command)
}

func TestPruneHistoryHonoursBothBounds(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := openTestStore(t, "", clock)

	for i := 0; i < 10; i++ {
		_, err := s.AppendHistory(ctx, domain.HistoryRecord{Command: "echo " + string(rune('a'+i)), Success: true})
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}
	deleted, err := s.PruneHistory(ctx, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	remaining, err := s.ListRecentHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	assert.Equal(t, "echo j", remaining[0].Command)

	deleted, err = s.PruneHistory(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestEnvironmentUpsertKeepsOneRowPerKey(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := openTestStore(t, "", clock)

	require.NoError(t, s.UpsertEnvironmentFacts(ctx, map[string]string{"os": "linux", "shell": "bash"}))
	first := clock.Now()
	clock.Advance(time.Hour)
	require.NoError(t, s.UpsertEnvironmentFact(ctx, "shell", "zsh"))
	clock.Advance(time.Hour)
	require.NoError(t, s.UpsertEnvironmentFact(ctx, "os", "linux"))

	facts, err := s.EnvironmentFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "os", facts[0].Key)
	assert.Equal(t, first, facts[0].DetectedAt, "unchanged value keeps its detection time")
	assert.Equal(t, clock.Now(), facts[0].UpdatedAt)
	assert.Equal(t, "zsh", facts[1].Value)
	assert.Equal(t, first.Add(time.Hour), facts[1].DetectedAt)
}

func TestRecordOutcomeIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "", newClock())
	require.NoError(t, s.UpsertEnvironmentFacts(ctx, map[string]string{"os": "darwin"}))
	_, err := s.UpsertSuggestion(ctx, "list files", domain.Candidate{Command: "ls -la", Confidence: 0.8})
	require.NoError(t, err)

	code := 1
	res, err := s.RecordOutcome(ctx, ports.OutcomeParams{Prompt: "list files", Command: "ls -la", Succeeded: false, ExitCode: &code})
	require.NoError(t, err)
	assert.True(t, res.SuggestionFound)

	records, err := s.ListRecentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, res.HistoryID, records[0].ID)
	assert.False(t, records[0].Success)
	assert.Equal(t, domain.StringValue("darwin"), records[0].Snapshot["os"])

	all, err := s.SuggestionsForPrompt(ctx, "list files")
	require.NoError(t, err)
	assert.Equal(t, 1, all[0].UseCount)
	assert.Equal(t, 0, all[0].SuccessCount)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.RecordOutcome(cancelled, ports.OutcomeParams{Prompt: "list files", Command: "ls -la", Succeeded: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	all, err = s.SuggestionsForPrompt(ctx, "list files")
	require.NoError(t, err)
	assert.Equal(t, 1, all[0].UseCount, "failed outcome must not change statistics")
}

func TestConcurrentProcessesLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "suggestions.db")
	a := openTestStore(t, path, nil)
	b := openTestStore(t, path, nil)

	_, err := a.UpsertSuggestion(ctx, "show branches", domain.Candidate{Command: "git branch -a", Confidence: 0.7})
	require.NoError(t, err)

	const perWriter = 25
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range []*Store{a, b} {
		st := st
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				if _, err := st.RecordOutcome(gctx, ports.OutcomeParams{Prompt: "show branches", Command: "git branch -a", Succeeded: i%5 != 0}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	all, err := b.SuggestionsForPrompt(ctx, "show branches")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2*perWriter, all[0].UseCount)
	assert.Equal(t, 2*(perWriter-perWriter/5), all[0].SuccessCount)

	history, err := a.ListRecentHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2*perWriter)
}

func TestMigratesLegacySchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE suggestions (id INTEGER PRIMARY KEY, prompt_hash TEXT NOT NULL, prompt TEXT NOT NULL,
			suggestion TEXT NOT NULL, explanation TEXT, confidence REAL, created_at TEXT, last_used TEXT,
			use_count INTEGER DEFAULT 0, success_rate REAL DEFAULT 0.5)`,
		`CREATE TABLE history (id INTEGER PRIMARY KEY, command TEXT NOT NULL, success BOOLEAN, executed_at TEXT)`,
		`CREATE TABLE environment (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT)`,
	} {
		_, err := legacy.Exec(stmt)
		require.NoError(t, err)
	}
	hash := domain.PromptHash("list images")
	_, err = legacy.Exec(`INSERT INTO suggestions (prompt_hash, prompt, suggestion, confidence, created_at, last_used, use_count, success_rate)
		VALUES (?, 'list images', 'docker images', 0.9, '2026-10-13 08:00:00', '2026-10-13 09:00:00', 6, 1.0)`, hash)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO environment (key, value, updated_at) VALUES ('os', 'linux', '2026-10-13 08:00:00')`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s := openTestStore(t, path, newClock())
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	all, err := s.SuggestionsForPrompt(ctx, "list images")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 6, all[0].UseCount)
	assert.Equal(t, 6, all[0].SuccessCount)
	assert.Equal(t, time.Date(2026, 10, 13, 8, 0, 0, 0, time.UTC), all[0].CreatedAt)

	facts, err := s.EnvironmentFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.False(t, facts[0].DetectedAt.IsZero())
}

func TestStatsAndClear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "", newClock())
	_, err := s.UpsertSuggestion(ctx, "p", domain.Candidate{Command: "true", Confidence: 0.5})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.RecordOutcome(ctx, ports.OutcomeParams{Prompt: "p", Command: "true", Succeeded: true})
		require.NoError(t, err)
	}

	stats, err := s.Stats(ctx, domain.DefaultCachePolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSuggestions)
	assert.Equal(t, 1, stats.EligibleCount)
	assert.Equal(t, 1, stats.HighSuccessCount)
	assert.Equal(t, 5, stats.HistoryCount)

	var buf bytes.Buffer
	n, err := s.ExportHistory(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, strings.Count(buf.String(), "\n"))

	require.NoError(t, s.Clear(ctx))
	stats, err = s.Stats(ctx, domain.DefaultCachePolicy())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSuggestions)
	assert.Zero(t, stats.HistoryCount)
}
