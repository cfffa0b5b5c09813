package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

const upsertFactSQL = `INSERT INTO environment (key, value, detected_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		detected_at = CASE WHEN environment.value = excluded.value THEN environment.detected_at ELSE excluded.detected_at END,
		value = excluded.value,
		updated_at = excluded.updated_at`

// UpsertEnvironmentFact stores a single fact, overwriting any previous value.
func (s *Store) UpsertEnvironmentFact(ctx context.Context, key, value string) error {
	return s.UpsertEnvironmentFacts(ctx, map[string]string{key: value})
}

// UpsertEnvironmentFacts stores all facts in one transaction.
func (s *Store) UpsertEnvironmentFacts(ctx context.Context, facts map[string]string) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("upsert environment", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, upsertFactSQL, k, facts[k], now, now); err != nil {
			return wrap("upsert environment", err)
		}
	}
	return wrap("upsert environment", tx.Commit())
}

// EnvironmentFacts returns all facts ordered by key.
func (s *Store) EnvironmentFacts(ctx context.Context) ([]domain.EnvironmentFact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, detected_at, updated_at FROM environment ORDER BY key`)
	if err != nil {
		return nil, wrap("list environment", err)
	}
	defer rows.Close()
	facts, err := scanFacts(rows)
	return facts, wrap("list environment", err)
}

func (s *Store) environmentFactsTx(ctx context.Context, tx *sql.Tx) ([]domain.EnvironmentFact, error) {
	rows, err := tx.QueryContext(ctx, `SELECT key, value, detected_at, updated_at FROM environment ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func scanFacts(rows *sql.Rows) ([]domain.EnvironmentFact, error) {
	var facts []domain.EnvironmentFact
	for rows.Next() {
		var (
			f                 domain.EnvironmentFact
			detected, updated string
		)
		if err := rows.Scan(&f.Key, &f.Value, &detected, &updated); err != nil {
			return nil, err
		}
		f.DetectedAt = parseTime(detected)
		f.UpdatedAt = parseTime(updated)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

var (
	_ ports.EnvironmentRepository = (*Store)(nil)
	_ ports.ContextStore          = (*Store)(nil)
)
