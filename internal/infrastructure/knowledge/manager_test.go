package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/phloem-sh/phloem/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every write gets a distinct stamp.
func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "PHLOEM.md")
	}
	if opts.Clock == nil {
		clock := &tickingClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
		opts.Clock = clock.Now
	}
	return NewManager(opts)
}

func sampleDocument() domain.Document {
	ts := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	return domain.Document{
		SchemaVersion: 1,
		Revision:      7,
		Updated:       ts,
		Sections: []domain.Section{
			{
				Name:    domain.CategoryDocker,
				Updated: ts,
				Exemplars: []domain.Exemplar{
					{Prompt: "list running containers", Command: "docker ps -a", Reinforced: 3, LastReinforced: ts},
					{Prompt: `quote "this" → that`, Command: "echo 'a\tb' | tr -d \"\\n\"", Reinforced: 1, LastReinforced: ts.Add(-time.Hour)},
				},
				Notes: []string{"prefers compose v2", "multi\nline"},
			},
			{Name: domain.CategoryGit},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	doc := sampleDocument()
	decoded, skipped, err := Decode(Encode(doc))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	if diff := cmp.Diff(doc, decoded, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSkipsUnknownLines(t *testing.T) {
	raw := "stray line\n" + string(Encode(sampleDocument())) + "random hand edit\n- not quoted\n"
	doc, skipped, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	assert.Len(t, doc.Sections, 2)
}

func TestLoadMissingReturnsSkeleton(t *testing.T) {
	m := newManager(t, Options{})
	doc, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.KnowledgeSchemaVersion, doc.SchemaVersion)
	assert.Empty(t, doc.Sections)

	text, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, headerPrefix))
}

func TestSaveThenLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{})
	saved, err := m.Save(ctx, sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), saved.Revision)

	loaded, err := m.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(saved, loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("load(save(d)) mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordSuccessCreatesSectionAndBackups(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{})

	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryDocker, "list running containers", "docker ps -a"))
	backups, err := m.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups, "first write has nothing to back up")

	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryDocker, "list running containers", "docker ps -a"))
	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryGit, "show branches", "git branch -a"))

	doc, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), doc.Revision)
	docker, ok := doc.Find(domain.CategoryDocker)
	require.True(t, ok)
	require.Len(t, docker.Exemplars, 1)
	assert.Equal(t, 2, docker.Exemplars[0].Reinforced)
	_, ok = doc.Find(domain.CategoryGit)
	assert.True(t, ok)

	backups, err = m.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	prev, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	prevDoc, _, err := Decode(prev)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), prevDoc.Revision, "newest backup holds the previous revision")
}

func TestBackupRotationKeepsNewest(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{BackupRetention: 3})
	for i := 0; i < 8; i++ {
		require.NoError(t, m.RecordSuccess(ctx, domain.CategoryFiles, fmt.Sprintf("prompt %d", i), "ls"))
	}
	backups, err := m.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 3)

	var revisions []uint64
	for _, b := range backups {
		data, err := os.ReadFile(b)
		require.NoError(t, err)
		doc, _, err := Decode(data)
		require.NoError(t, err)
		revisions = append(revisions, doc.Revision)
	}
	assert.Equal(t, []uint64{7, 6, 5}, revisions)
}

func TestSizeCeilingEvictsOldestButKeepsOnePerSection(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{MaxSizeBytes: 900, MaxExemplarsPerSection: 100})

	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryGit, "show status", "git status"))
	for i := 0; i < 30; i++ {
		require.NoError(t, m.RecordSuccess(ctx, domain.CategoryDocker, fmt.Sprintf("docker prompt number %02d", i), fmt.Sprintf("docker run image-%02d", i)))
	}

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(900))

	doc, err := m.Load(ctx)
	require.NoError(t, err)
	git, ok := doc.Find(domain.CategoryGit)
	require.True(t, ok)
	assert.Len(t, git.Exemplars, 1, "oldest section still keeps its last exemplar")

	docker, ok := doc.Find(domain.CategoryDocker)
	require.True(t, ok)
	require.NotEmpty(t, docker.Exemplars)
	last := docker.Exemplars[len(docker.Exemplars)-1]
	assert.Equal(t, "docker run image-29", last.Command, "newest exemplar survives eviction")
	assert.Less(t, len(docker.Exemplars), 30)
}

func TestSizeCeilingNeverEmptiesSections(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{MaxSizeBytes: 10})
	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryGit, "status", "git status"))
	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryDocker, "ps", "docker ps"))

	doc, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ExemplarCount())
}

func TestWriteFailureLeavesPreviousDocument(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{})
	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryGit, "status", "git status"))
	before, err := os.ReadFile(m.Path())
	require.NoError(t, err)

	boom := errors.New("disk full")
	m.beforeRename = func() error { return boom }
	err = m.RecordSuccess(ctx, domain.CategoryGit, "log", "git log")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDocumentIO))
	assert.True(t, errors.Is(err, boom))

	after, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	backups, err := m.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	snap, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, string(before), string(snap))

	entries, err := os.ReadDir(filepath.Dir(m.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file %s left behind", e.Name())
	}
}

func TestCrashBeforeRotationLeavesConsistentState(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{BackupRetention: 2})
	for i := 0; i < 4; i++ {
		require.NoError(t, m.RecordSuccess(ctx, domain.CategoryFiles, fmt.Sprintf("p%d", i), "find ."))
	}

	m.afterWrite = func() error { return errors.New("crash") }
	require.Error(t, m.RecordSuccess(ctx, domain.CategoryFiles, "p-crash", "find . -type f"))

	doc, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), doc.Revision, "new document is fully written")
	backups, err := m.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 3, "old backups not yet rotated")

	m.afterWrite = nil
	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryFiles, "p-next", "find . -name '*.go'"))
	backups, err = m.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestConcurrentWritersLoseNothing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "PHLOEM.md")
	const writers, perWriter = 4, 5

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			m := NewManager(Options{Path: path, LockRetryDelay: time.Millisecond, MaxExemplarsPerSection: 100})
			for i := 0; i < perWriter; i++ {
				if err := m.RecordSuccess(gctx, domain.CategoryGit, fmt.Sprintf("writer %d prompt %d", w, i), "git status"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	doc, err := NewManager(Options{Path: path}).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, doc.ExemplarCount())
	assert.Equal(t, uint64(writers*perWriter), doc.Revision)
}

func TestClearKeepsBackup(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, Options{})
	require.NoError(t, m.RecordSuccess(ctx, domain.CategoryGit, "status", "git status"))
	require.NoError(t, m.AddNote(ctx, domain.CategoryGit, "prefers rebase over merge"))
	require.NoError(t, m.Clear(ctx))

	doc, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Sections)
	assert.Equal(t, uint64(3), doc.Revision)

	backups, err := m.Backups()
	require.NoError(t, err)
	require.NotEmpty(t, backups)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "prefers rebase over merge")
}

func TestLockHonoursContext(t *testing.T) {
	m := newManager(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.RecordSuccess(ctx, domain.CategoryGit, "status", "git status")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDocumentIO))
}
