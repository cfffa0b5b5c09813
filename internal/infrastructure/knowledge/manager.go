// Package knowledge maintains the human-readable knowledge document and its
// rotating backups.
//
// Every mutation runs as one cycle under an exclusive advisory lock on a
// sibling ".lock" file: load, mutate, snapshot the previous file, write the
// new file through a temp-file rename, rotate old snapshots.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Options configures a Manager. Zero values fall back to the shipped defaults.
type Options struct {
	Path                   string
	MaxSizeBytes           int
	BackupRetention        int
	MaxExemplarsPerSection int
	LockRetryDelay         time.Duration
	Clock                  func() time.Time
	Logger                 ports.Logger
}

// Manager owns the knowledge document file and its backups.
type Manager struct {
	path         string
	maxSize      int
	retention    int
	maxExemplars int
	retryDelay   time.Duration
	clock        func() time.Time
	logger       ports.Logger
	backups      backupNamer

	// hooks used by tests to simulate crashes and write failures
	beforeRename func() error
	afterWrite   func() error
}

// NewManager builds a Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		path:         opts.Path,
		maxSize:      opts.MaxSizeBytes,
		retention:    opts.BackupRetention,
		maxExemplars: opts.MaxExemplarsPerSection,
		retryDelay:   opts.LockRetryDelay,
		clock:        opts.Clock,
		logger:       opts.Logger,
		backups:      newBackupNamer(opts.Path),
	}
	if m.maxSize <= 0 {
		m.maxSize = domain.DefaultKnowledgeMaxSizeKB * 1024
	}
	if m.retention <= 0 {
		m.retention = domain.DefaultBackupRetention
	}
	if m.maxExemplars <= 0 {
		m.maxExemplars = domain.DefaultMaxExemplarsPerSection
	}
	if m.retryDelay <= 0 {
		m.retryDelay = domain.DefaultKnowledgeLockRetryDelay
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m
}

// Path returns the document location.
func (m *Manager) Path() string { return m.path }

func (m *Manager) now() time.Time {
	return m.clock().UTC().Truncate(time.Second)
}

// Load parses the document. A missing file yields an empty skeleton.
func (m *Manager) Load(ctx context.Context) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	doc, _, err := m.load()
	return doc, err
}

// Read returns the document text as it would be shown to the generator.
func (m *Manager) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return string(Encode(domain.NewDocument())), nil
	}
	if err != nil {
		return "", &domain.DocumentError{Op: "read", Path: m.path, Err: err}
	}
	return string(data), nil
}

// RecordSuccess adds or reinforces an exemplar in the category's section.
func (m *Manager) RecordSuccess(ctx context.Context, category domain.Category, prompt, command string) error {
	if category == "" {
		category = domain.CategoryUnclassified
	}
	return m.mutate(ctx, "record success", func(doc *domain.Document, now time.Time) bool {
		doc.Section(category, now).Reinforce(prompt, command, now, m.maxExemplars)
		return true
	})
}

// AddNote records a free-text preference under a category.
func (m *Manager) AddNote(ctx context.Context, category domain.Category, note string) error {
	if category == "" {
		category = domain.CategoryUnclassified
	}
	return m.mutate(ctx, "add note", func(doc *domain.Document, now time.Time) bool {
		return doc.Section(category, now).AddNote(note, now)
	})
}

// Clear resets the document to an empty skeleton. The previous content is
// kept as a backup.
func (m *Manager) Clear(ctx context.Context) error {
	return m.mutate(ctx, "clear", func(doc *domain.Document, _ time.Time) bool {
		revision := doc.Revision
		*doc = domain.NewDocument()
		doc.Revision = revision
		return true
	})
}

// Save writes doc as the next revision and returns what was written.
func (m *Manager) Save(ctx context.Context, doc domain.Document) (domain.Document, error) {
	var saved domain.Document
	err := m.withLock(ctx, "save", func() error {
		current, exists, err := m.load()
		if err != nil {
			return err
		}
		if current.Revision > doc.Revision {
			doc.Revision = current.Revision
		}
		saved, err = m.commit(doc, exists)
		return err
	})
	return saved, err
}

// Backups lists snapshot paths, newest first.
func (m *Manager) Backups() ([]string, error) {
	paths, err := m.backups.list()
	if err != nil {
		return nil, &domain.DocumentError{Op: "list backups", Path: m.path, Err: err}
	}
	return paths, nil
}

func (m *Manager) mutate(ctx context.Context, op string, fn func(doc *domain.Document, now time.Time) bool) error {
	return m.withLock(ctx, op, func() error {
		doc, exists, err := m.load()
		if err != nil {
			return err
		}
		if !fn(&doc, m.now()) {
			return nil
		}
		_, err = m.commit(doc, exists)
		return err
	})
}

func (m *Manager) withLock(ctx context.Context, op string, fn func() error) error {
	lock := flock.New(m.path + ".lock")
	if err := os.MkdirAll(m.backups.dir, domain.DirectoryPermissions); err != nil {
		return &domain.DocumentError{Op: op, Path: m.path, Err: err}
	}
	locked, err := lock.TryLockContext(ctx, m.retryDelay)
	if err != nil {
		return &domain.DocumentError{Op: op, Path: m.path, Err: fmt.Errorf("acquire lock: %w", err)}
	}
	if !locked {
		return &domain.DocumentError{Op: op, Path: m.path, Err: errors.New("lock not acquired")}
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			m.warn("releasing knowledge lock failed", map[string]interface{}{"error": uerr.Error()})
		}
	}()
	return fn()
}

func (m *Manager) load() (domain.Document, bool, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewDocument(), false, nil
	}
	if err != nil {
		return domain.Document{}, false, &domain.DocumentError{Op: "load", Path: m.path, Err: err}
	}
	doc, skipped, err := Decode(data)
	if err != nil {
		return domain.Document{}, true, &domain.DocumentError{Op: "parse", Path: m.path, Err: err}
	}
	if skipped > 0 {
		m.debug("ignored unrecognised knowledge lines", map[string]interface{}{"lines": skipped})
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = domain.KnowledgeSchemaVersion
	}
	return doc, true, nil
}

// commit stamps, bounds, snapshots, writes and rotates. Must hold the lock.
func (m *Manager) commit(doc domain.Document, exists bool) (domain.Document, error) {
	now := m.now()
	doc.SchemaVersion = domain.KnowledgeSchemaVersion
	doc.Revision++
	doc.Updated = now

	data := m.fit(&doc)

	if exists {
		if err := m.snapshot(now, doc.Revision-1); err != nil {
			return domain.Document{}, &domain.DocumentError{Op: "backup", Path: m.path, Err: err}
		}
	}
	if err := writeAtomic(m.path, data, m.beforeRename); err != nil {
		return domain.Document{}, &domain.DocumentError{Op: "write", Path: m.path, Err: err}
	}
	if m.afterWrite != nil {
		if err := m.afterWrite(); err != nil {
			return domain.Document{}, &domain.DocumentError{Op: "write", Path: m.path, Err: err}
		}
	}
	removed, err := m.backups.rotate(m.retention)
	if err != nil {
		return domain.Document{}, &domain.DocumentError{Op: "rotate backups", Path: m.path, Err: err}
	}
	m.debug("knowledge document saved", map[string]interface{}{
		"revision":        doc.Revision,
		"bytes":           len(data),
		"exemplars":       doc.ExemplarCount(),
		"backups_removed": len(removed),
	})
	return doc, nil
}

// fit evicts the oldest exemplars until the encoded document is within the
// size ceiling. A section is never emptied, so the result may still exceed
// the ceiling when every section is down to one exemplar.
func (m *Manager) fit(doc *domain.Document) []byte {
	data := Encode(*doc)
	evicted := 0
	for len(data) > m.maxSize {
		if !doc.EvictOldest() {
			m.warn("knowledge document exceeds size ceiling", map[string]interface{}{"bytes": len(data), "max_bytes": m.maxSize})
			break
		}
		evicted++
		data = Encode(*doc)
	}
	if evicted > 0 {
		m.debug("evicted knowledge exemplars", map[string]interface{}{"count": evicted})
	}
	return data
}

func (m *Manager) snapshot(at time.Time, revision uint64) error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return writeAtomic(m.backups.name(at, revision), data, nil)
}

func (m *Manager) debug(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, fields)
	}
}

func (m *Manager) warn(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Warn(msg, fields)
	}
}

var _ ports.KnowledgeManager = (*Manager)(nil)
