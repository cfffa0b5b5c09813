package store

import (
	"context"
	"fmt"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// RecordOutcome updates usage statistics and appends a history record, with a
// snapshot of the current environment facts, in a single transaction.
func (s *Store) RecordOutcome(ctx context.Context, p ports.OutcomeParams) (domain.OutcomeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.OutcomeResult{}, wrap("record outcome", err)
	}
	defer tx.Rollback()

	found, err := s.recordUsageTx(ctx, tx, p.Prompt, p.Command, p.Succeeded)
	if err != nil {
		return domain.OutcomeResult{}, wrap("record outcome", fmt.Errorf("step 1 (usage): %w", err))
	}

	facts, err := s.environmentFactsTx(ctx, tx)
	if err != nil {
		return domain.OutcomeResult{}, wrap("record outcome", fmt.Errorf("step 2 (snapshot): %w", err))
	}

	id, err := s.appendHistoryTx(ctx, tx, domain.HistoryRecord{
		Command:  p.Command,
		Prompt:   p.Prompt,
		Success:  p.Succeeded,
		ExitCode: p.ExitCode,
		Snapshot: domain.SnapshotFromFacts(facts),
	})
	if err != nil {
		return domain.OutcomeResult{}, wrap("record outcome", fmt.Errorf("step 3 (history): %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domain.OutcomeResult{}, wrap("record outcome", err)
	}
	s.debug("outcome recorded", map[string]interface{}{"history_id": id, "suggestion_found": found, "success": p.Succeeded})
	return domain.OutcomeResult{SuggestionFound: found, HistoryID: id}, nil
}

var _ ports.OutcomeStore = (*Store)(nil)
