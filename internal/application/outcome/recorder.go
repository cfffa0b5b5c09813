// Package outcome records what happened after the user acted on a suggestion.
//
// Statistics lead and the knowledge document follows: the store transaction
// commits first, and the document is only touched once it has succeeded.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Recorder commits outcomes to the store and learns from successes.
type Recorder struct {
	Store     ports.OutcomeStore
	Knowledge ports.KnowledgeWriter
	// History, when set, is pruned to the retention bounds after each outcome.
	History       ports.HistoryPruner
	RetentionDays int
	MaxRecords    int
	Learning      bool
	SkipLearning  []string
	Logger        ports.Logger
}

// Record commits usage statistics and history atomically, then reinforces the
// knowledge document for successful, non-trivial commands. A knowledge error
// is returned after the statistics are already durable.
func (r *Recorder) Record(ctx context.Context, req domain.OutcomeRequest) (domain.OutcomeResult, error) {
	if r.Store == nil {
		return domain.OutcomeResult{}, errors.New("outcome.Recorder dependencies not satisfied")
	}
	// The trimmed literal is the cache identity; it must match what Suggest stored.
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return domain.OutcomeResult{}, errors.New("command is empty")
	}
	if domain.NormalizePrompt(req.Prompt) == "" {
		return domain.OutcomeResult{}, domain.ErrEmptyPrompt
	}

	result, err := r.Store.RecordOutcome(ctx, ports.OutcomeParams{
		Prompt:    req.Prompt,
		Command:   command,
		Succeeded: req.Succeeded,
		ExitCode:  req.ExitCode,
	})
	if err != nil {
		return domain.OutcomeResult{}, fmt.Errorf("record outcome: %w", err)
	}
	result.Category = domain.DeriveCategory(req.Prompt, command)

	r.prune(ctx)

	if !r.shouldLearn(req.Succeeded, command) {
		return result, nil
	}
	if err := r.Knowledge.RecordSuccess(ctx, result.Category, req.Prompt, command); err != nil {
		r.logError("knowledge update failed after statistics were committed", err, result)
		return result, fmt.Errorf("update knowledge: %w", err)
	}
	result.Learned = true
	if r.Logger != nil {
		r.Logger.Debug("outcome learned", map[string]interface{}{
			"category":   string(result.Category),
			"history_id": result.HistoryID,
		})
	}
	return result, nil
}

func (r *Recorder) shouldLearn(succeeded bool, command string) bool {
	if !succeeded || !r.Learning || r.Knowledge == nil {
		return false
	}
	exe := domain.ExtractExecutable(command)
	for _, skip := range r.SkipLearning {
		if strings.EqualFold(exe, skip) {
			return false
		}
	}
	return true
}

func (r *Recorder) prune(ctx context.Context) {
	if r.History == nil || (r.RetentionDays <= 0 && r.MaxRecords <= 0) {
		return
	}
	deleted, err := r.History.PruneHistory(ctx, r.RetentionDays, r.MaxRecords)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("history prune failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if deleted > 0 && r.Logger != nil {
		r.Logger.Debug("history pruned", map[string]interface{}{"deleted": deleted})
	}
}

func (r *Recorder) logError(msg string, err error, result domain.OutcomeResult) {
	if r.Logger == nil {
		return
	}
	r.Logger.Error(msg, err, map[string]interface{}{
		"category":   string(result.Category),
		"history_id": result.HistoryID,
	})
}
