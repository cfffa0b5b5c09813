package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// AppendHistory inserts a new record and returns its id.
func (s *Store) AppendHistory(ctx context.Context, record domain.HistoryRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("append history", err)
	}
	defer tx.Rollback()

	id, err := s.appendHistoryTx(ctx, tx, record)
	if err != nil {
		return 0, wrap("append history", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("append history", err)
	}
	return id, nil
}

func (s *Store) appendHistoryTx(ctx context.Context, tx *sql.Tx, record domain.HistoryRecord) (int64, error) {
	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = s.now()
	}
	var snapshot any
	if len(record.Snapshot) > 0 {
		raw, err := json.Marshal(record.Snapshot)
		if err != nil {
			return 0, fmt.Errorf("encode context snapshot: %w", err)
		}
		snapshot = string(raw)
	}
	var exitCode any
	if record.ExitCode != nil {
		exitCode = *record.ExitCode
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO history
		(command, prompt, success, exit_code, executed_at, context_snapshot)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.Command,
		record.Prompt,
		boolToInt(record.Success),
		exitCode,
		formatTime(record.ExecutedAt),
		snapshot,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRecentHistory returns history records, most recent first.
func (s *Store) ListRecentHistory(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	return s.records(ctx, limit, "")
}

// SearchHistory returns records whose prompt or command contains query.
func (s *Store) SearchHistory(ctx context.Context, query string, limit int) ([]domain.HistoryRecord, error) {
	return s.records(ctx, limit, query)
}

func (s *Store) records(ctx context.Context, limit int, search string) ([]domain.HistoryRecord, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT id, command, COALESCE(prompt, ''), success, exit_code, executed_at, context_snapshot FROM history")
	var args []interface{}
	if search != "" {
		builder.WriteString(" WHERE prompt LIKE ? OR command LIKE ?")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	builder.WriteString(" ORDER BY executed_at DESC, id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, wrap("list history", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var (
			rec      domain.HistoryRecord
			success  int
			exitCode sql.NullInt64
			ts       string
			snapshot sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Command, &rec.Prompt, &success, &exitCode, &ts, &snapshot); err != nil {
			return nil, wrap("list history", err)
		}
		rec.Success = success == 1
		rec.ExecutedAt = parseTime(ts)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		if snapshot.Valid && snapshot.String != "" {
			if err := json.Unmarshal([]byte(snapshot.String), &rec.Snapshot); err != nil {
				s.debug("skipping unreadable context snapshot", map[string]interface{}{"id": rec.ID, "error": err.Error()})
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list history", err)
	}
	return records, nil
}

// PruneHistory keeps only records that are younger than maxAgeDays and among
// the maxCount newest. A zero bound is not applied.
func (s *Store) PruneHistory(ctx context.Context, maxAgeDays, maxCount int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("prune history", err)
	}
	defer tx.Rollback()

	var deleted int64
	if maxAgeDays > 0 {
		cutoff := formatTime(s.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour))
		res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE executed_at < ?`, cutoff)
		if err != nil {
			return 0, wrap("prune history", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if maxCount > 0 {
		res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE id NOT IN (
			SELECT id FROM history ORDER BY executed_at DESC, id DESC LIMIT ?)`, maxCount)
		if err != nil {
			return 0, wrap("prune history", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("prune history", err)
	}
	return deleted, nil
}

// ExportHistory writes every history record as one JSON object per line.
func (s *Store) ExportHistory(ctx context.Context, w io.Writer) (int, error) {
	records, err := s.records(ctx, 0, "")
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return i, fmt.Errorf("export history: %w", err)
		}
	}
	return len(records), nil
}

var _ ports.HistoryRepository = (*Store)(nil)
