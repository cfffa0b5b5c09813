package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

const suggestionColumns = `prompt_hash, prompt, suggestion, COALESCE(explanation, ''), confidence, created_at, last_used, use_count, success_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSuggestion(row rowScanner) (domain.Suggestion, error) {
	var (
		sg            domain.Suggestion
		created, used string
	)
	if err := row.Scan(&sg.PromptHash, &sg.Prompt, &sg.Command, &sg.Explanation, &sg.Confidence, &created, &used, &sg.UseCount, &sg.SuccessCount); err != nil {
		return domain.Suggestion{}, err
	}
	sg.CreatedAt = parseTime(created)
	sg.LastUsed = parseTime(used)
	return sg, nil
}

// UpsertSuggestion inserts a freshly generated suggestion with zero counts,
// or refreshes explanation and confidence of an existing one. Counts are
// never reset.
func (s *Store) UpsertSuggestion(ctx context.Context, prompt string, c domain.Candidate) (domain.Suggestion, error) {
	hash := domain.PromptHash(prompt)
	now := s.timestamp()
	confidence := domain.ClampConfidence(c.Confidence)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Suggestion{}, wrap("upsert suggestion", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO suggestions
		(prompt_hash, prompt, suggestion, explanation, confidence, created_at, last_used, use_count, success_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT(prompt_hash, suggestion) DO UPDATE SET
			explanation = excluded.explanation,
			confidence = excluded.confidence`,
		hash, prompt, c.Command, c.Explanation, confidence, now, now)
	if err != nil {
		return domain.Suggestion{}, wrap("upsert suggestion", err)
	}

	sg, err := scanSuggestion(tx.QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE prompt_hash = ? AND suggestion = ?`, hash, c.Command))
	if err != nil {
		return domain.Suggestion{}, wrap("upsert suggestion", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Suggestion{}, wrap("upsert suggestion", err)
	}
	return sg, nil
}

// RecordUsage increments use_count, and success_count when succeeded. It
// reports false when no suggestion matches the prompt/command pair.
func (s *Store) RecordUsage(ctx context.Context, prompt, command string, succeeded bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrap("record usage", err)
	}
	defer tx.Rollback()

	found, err := s.recordUsageTx(ctx, tx, prompt, command, succeeded)
	if err != nil {
		return false, wrap("record usage", err)
	}
	if err := tx.Commit(); err != nil {
		return false, wrap("record usage", err)
	}
	return found, nil
}

func (s *Store) recordUsageTx(ctx context.Context, tx *sql.Tx, prompt, command string, succeeded bool) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE suggestions SET
			use_count = use_count + 1,
			success_count = success_count + ?,
			last_used = ?
		WHERE prompt_hash = ? AND suggestion = ?`,
		boolToInt(succeeded), s.timestamp(), domain.PromptHash(prompt), command)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SuggestionsForPrompt returns every cached suggestion for a prompt.
func (s *Store) SuggestionsForPrompt(ctx context.Context, prompt string) ([]domain.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE prompt_hash = ? ORDER BY id`, domain.PromptHash(prompt))
	if err != nil {
		return nil, wrap("list suggestions", err)
	}
	defer rows.Close()
	out, err := collectSuggestions(rows)
	return out, wrap("list suggestions", err)
}

// QueryEligible returns the best suggestion that passes the cache policy.
// Counts and age are prefiltered in SQL; the strict success-rate threshold
// and ranking are applied by the policy itself.
func (s *Store) QueryEligible(ctx context.Context, prompt string, policy domain.CachePolicy, now time.Time) (domain.Suggestion, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions
		WHERE prompt_hash = ? AND use_count >= ? AND created_at > ?`,
		domain.PromptHash(prompt), policy.MinUseCount, formatTime(policy.CreatedAfter(now)))
	if err != nil {
		return domain.Suggestion{}, false, wrap("query eligible", err)
	}
	defer rows.Close()
	candidates, err := collectSuggestions(rows)
	if err != nil {
		return domain.Suggestion{}, false, wrap("query eligible", err)
	}
	best, ok := policy.SelectBest(candidates, now)
	return best, ok, nil
}

// ListSuggestions returns suggestions ordered by most recent use.
func (s *Store) ListSuggestions(ctx context.Context, limit int) ([]domain.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions ORDER BY last_used DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list suggestions", err)
	}
	defer rows.Close()
	out, err := collectSuggestions(rows)
	return out, wrap("list suggestions", err)
}

// PruneSuggestions deletes suggestions created more than olderThanDays ago.
func (s *Store) PruneSuggestions(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := formatTime(s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour))
	res, err := s.db.ExecContext(ctx, `DELETE FROM suggestions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, wrap("prune suggestions", err)
	}
	n, err := res.RowsAffected()
	return n, wrap("prune suggestions", err)
}

// Stats summarises the store contents.
func (s *Store) Stats(ctx context.Context, policy domain.CachePolicy) (domain.CacheStats, error) {
	all, err := s.ListSuggestions(ctx, 0)
	if err != nil {
		return domain.CacheStats{}, err
	}
	now := s.now()
	stats := domain.CacheStats{TotalSuggestions: len(all)}
	var sum float64
	for _, sg := range all {
		rate := sg.SuccessRate()
		sum += rate
		if rate > domain.HighSuccessRate {
			stats.HighSuccessCount++
		}
		if policy.Eligible(sg, now) {
			stats.EligibleCount++
		}
	}
	if len(all) > 0 {
		stats.AverageSuccess = sum / float64(len(all))
	}

	for _, q := range []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM history", &stats.HistoryCount},
		{"SELECT COUNT(*) FROM environment", &stats.EnvironmentFacts},
		{"PRAGMA user_version", &stats.SchemaVersion},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return domain.CacheStats{}, wrap("stats", err)
		}
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSizeBytes = info.Size()
	}
	return stats, nil
}

// Clear deletes all suggestions and history. Environment facts are kept.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("clear", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"suggestions", "history"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return wrap("clear", err)
		}
	}
	return wrap("clear", tx.Commit())
}

func collectSuggestions(rows *sql.Rows) ([]domain.Suggestion, error) {
	var out []domain.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ ports.SuggestionStore = (*Store)(nil)
