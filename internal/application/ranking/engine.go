// Package ranking decides whether a cached suggestion can be served without
// asking the generator.
package ranking

import (
	"context"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Engine looks up the best eligible suggestion for a prompt.
type Engine struct {
	Store  ports.SuggestionStore
	Policy domain.CachePolicy
	Clock  func() time.Time
	Logger ports.Logger
}

// Lookup returns the top ranked eligible suggestion. A miss is reported as
// found=false with a nil error. Lookups never change usage statistics.
func (e *Engine) Lookup(ctx context.Context, prompt string) (domain.Suggestion, bool, error) {
	if domain.NormalizePrompt(prompt) == "" {
		return domain.Suggestion{}, false, domain.ErrEmptyPrompt
	}
	policy := e.Policy
	if policy == (domain.CachePolicy{}) {
		policy = domain.DefaultCachePolicy()
	}
	now := time.Now
	if e.Clock != nil {
		now = e.Clock
	}

	s, found, err := e.Store.QueryEligible(ctx, prompt, policy, now().UTC())
	if err != nil {
		return domain.Suggestion{}, false, err
	}
	if e.Logger != nil {
		fields := map[string]interface{}{"prompt_hash": domain.PromptHash(prompt), "hit": found}
		if found {
			fields["score"] = domain.Score(s)
			fields["use_count"] = s.UseCount
		}
		e.Logger.Debug("cache lookup", fields)
	}
	return s, found, nil
}
