package outcome

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/knowledge"
	"github.com/phloem-sh/phloem/internal/infrastructure/store"
	"github.com/phloem-sh/phloem/internal/ports"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

type stubStore struct {
	log    *callLog
	err    error
	params ports.OutcomeParams
}

func (s *stubStore) RecordOutcome(_ context.Context, p ports.OutcomeParams) (domain.OutcomeResult, error) {
	s.log.add("store")
	s.params = p
	if s.err != nil {
		return domain.OutcomeResult{}, s.err
	}
	return domain.OutcomeResult{SuggestionFound: true, HistoryID: 42}, nil
}

type stubKnowledge struct {
	log      *callLog
	err      error
	category domain.Category
	command  string
}

func (k *stubKnowledge) RecordSuccess(_ context.Context, category domain.Category, _ string, command string) error {
	k.log.add("knowledge")
	k.category = category
	k.command = command
	return k.err
}

type stubPruner struct {
	days, max int
	calls     int
}

func (p *stubPruner) PruneHistory(_ context.Context, days, max int) (int64, error) {
	p.calls++
	p.days, p.max = days, max
	return 3, nil
}

func intPtr(v int) *int { return &v }

func TestRecordCommitsStoreBeforeKnowledge(t *testing.T) {
	log := &callLog{}
	st := &stubStore{log: log}
	kn := &stubKnowledge{log: log}
	pruner := &stubPruner{}
	r := &Recorder{Store: st, Knowledge: kn, History: pruner, RetentionDays: 90, MaxRecords: 100, Learning: true}

	res, err := r.Record(context.Background(), domain.OutcomeRequest{
		Prompt:    "list running containers",
		Command:   "  docker ps -a \n",
		Succeeded: true,
		ExitCode:  intPtr(0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"store", "knowledge"}, log.calls)
	assert.Equal(t, "docker ps -a", st.params.Command)
	assert.Equal(t, 0, *st.params.ExitCode)
	assert.Equal(t, domain.CategoryDocker, kn.category)
	assert.True(t, res.Learned)
	assert.True(t, res.SuggestionFound)
	assert.Equal(t, int64(42), res.HistoryID)
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 90, pruner.days)
	assert.Equal(t, 100, pruner.max)
}

func TestRecordFailureDoesNotLearn(t *testing.T) {
	log := &callLog{}
	kn := &stubKnowledge{log: log}
	r := &Recorder{Store: &stubStore{log: log}, Knowledge: kn, Learning: true}

	res, err := r.Record(context.Background(), domain.OutcomeRequest{Prompt: "show branches", Command: "git branch", ExitCode: intPtr(1)})
	require.NoError(t, err)
	assert.False(t, res.Learned)
	assert.Equal(t, []string{"store"}, log.calls)
}

func TestRecordSkipsTrivialCommandsAndDisabledLearning(t *testing.T) {
	log := &callLog{}
	r := &Recorder{
		Store:        &stubStore{log: log},
		Knowledge:    &stubKnowledge{log: log},
		Learning:     true,
		SkipLearning: []string{"ls", "cat"},
	}
	_, err := r.Record(context.Background(), domain.OutcomeRequest{Prompt: "list files", Command: "sudo ls -la", Succeeded: true})
	require.NoError(t, err)

	r.Learning = false
	_, err = r.Record(context.Background(), domain.OutcomeRequest{Prompt: "show branches", Command: "git branch", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"store", "store"}, log.calls)
}

func TestRecordStoreErrorStopsBeforeKnowledge(t *testing.T) {
	log := &callLog{}
	storeErr := &domain.StoreError{Op: "record outcome", Err: errors.New("database is locked")}
	r := &Recorder{Store: &stubStore{log: log, err: storeErr}, Knowledge: &stubKnowledge{log: log}, Learning: true}

	_, err := r.Record(context.Background(), domain.OutcomeRequest{Prompt: "show branches", Command: "git branch", Succeeded: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, []string{"store"}, log.calls)
}

func TestRecordKnowledgeErrorKeepsStatistics(t *testing.T) {
	log := &callLog{}
	docErr := &domain.DocumentError{Op: "write", Path: "/tmp/PHLOEM.md", Err: errors.New("read-only file system")}
	r := &Recorder{Store: &stubStore{log: log}, Knowledge: &stubKnowledge{log: log, err: docErr}, Learning: true}

	res, err := r.Record(context.Background(), domain.OutcomeRequest{Prompt: "show branches", Command: "git branch", Succeeded: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDocumentIO)
	assert.Equal(t, int64(42), res.HistoryID, "committed statistics are still reported")
	assert.False(t, res.Learned)
}

func TestRecordRejectsEmptyInput(t *testing.T) {
	r := &Recorder{Store: &stubStore{log: &callLog{}}}
	_, err := r.Record(context.Background(), domain.OutcomeRequest{Prompt: "x", Command: "  "})
	assert.Error(t, err)
	_, err = r.Record(context.Background(), domain.OutcomeRequest{Prompt: " ", Command: "ls"})
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)
}

func TestConcurrentRecordersLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache", "suggestions.db")
	docPath := filepath.Join(dir, "PHLOEM.md")
	const prompt, command = "list running containers", "docker ps -a"

	seed, err := store.Open(ctx, store.Options{Path: dbPath})
	require.NoError(t, err)
	_, err = seed.UpsertSuggestion(ctx, prompt, domain.Candidate{Command: command, Confidence: 0.9})
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	const processes, perProcess = 2, 10
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < processes; p++ {
		g.Go(func() error {
			s, err := store.Open(gctx, store.Options{Path: dbPath})
			if err != nil {
				return err
			}
			defer s.Close()
			r := &Recorder{
				Store:     s,
				Knowledge: knowledge.NewManager(knowledge.Options{Path: docPath, LockRetryDelay: time.Millisecond}),
				Learning:  true,
			}
			for i := 0; i < perProcess; i++ {
				if _, err := r.Record(gctx, domain.OutcomeRequest{Prompt: prompt, Command: command, Succeeded: i%2 == 0}); err != nil {
					return fmt.Errorf("process %d outcome %d: %w", p, i, err)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s, err := store.Open(ctx, store.Options{Path: dbPath})
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.SuggestionsForPrompt(ctx, prompt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, processes*perProcess, rows[0].UseCount)
	assert.Equal(t, processes*perProcess/2, rows[0].SuccessCount)

	doc, err := knowledge.NewManager(knowledge.Options{Path: docPath}).Load(ctx)
	require.NoError(t, err)
	section, ok := doc.Find(domain.CategoryDocker)
	require.True(t, ok)
	require.Len(t, section.Exemplars, 1)
	assert.Equal(t, processes*perProcess/2, section.Exemplars[0].Reinforced)
}

func TestRecordKeepsInternalWhitespace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.Open(ctx, store.Options{Path: filepath.Join(dir, "cache", "suggestions.db")})
	require.NoError(t, err)
	defer s.Close()

	const prompt, command = "find the phrase in my notes", `grep -n "foo  bar" notes.txt`
	_, err = s.UpsertSuggestion(ctx, prompt, domain.Candidate{Command: command, Confidence: 0.9})
	require.NoError(t, err)

	kn := knowledge.NewManager(knowledge.Options{Path: filepath.Join(dir, "PHLOEM.md")})
	r := &Recorder{Store: s, Knowledge: kn, Learning: true}
	for i := 0; i < 5; i++ {
		res, err := r.Record(ctx, domain.OutcomeRequest{Prompt: prompt, Command: " " + command + "\n", Succeeded: true})
		require.NoError(t, err)
		assert.True(t, res.SuggestionFound)
	}

	rows, err := s.SuggestionsForPrompt(ctx, prompt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].UseCount)
	assert.Equal(t, 5, rows[0].SuccessCount)

	history, err := s.ListRecentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, command, history[0].Command)

	doc, err := kn.Load(ctx)
	require.NoError(t, err)
	section, ok := doc.Find(domain.DeriveCategory(prompt, command))
	require.True(t, ok)
	require.Len(t, section.Exemplars, 1)
	assert.Equal(t, command, section.Exemplars[0].Command)
}
