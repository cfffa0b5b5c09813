package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Service orchestrates the suggest lifecycle end-to-end.
type Service struct {
	Cache     ports.SuggestionLookup
	Assembler ports.ContextAssembler
	Generator ports.Generator
	Store     ports.SuggestionStore
	Checker   ports.ExecutableChecker
	Logger    ports.Logger

	MaxSuggestions int
	Clock          func() time.Time
}

// Suggest answers a prompt from the cache when a proven suggestion exists and
// from the generator otherwise. Store failures degrade to regeneration.
func (s *Service) Suggest(ctx context.Context, req domain.SuggestRequest) (domain.SuggestResponse, error) {
	if s.Assembler == nil || s.Generator == nil || s.Checker == nil || s.Logger == nil {
		return domain.SuggestResponse{}, errors.New("query.Service dependencies not satisfied")
	}
	if domain.NormalizePrompt(req.Prompt) == "" {
		return domain.SuggestResponse{}, domain.ErrEmptyPrompt
	}

	resp := domain.SuggestResponse{
		Prompt:   req.Prompt,
		Category: domain.Categorize(req.Prompt),
	}

	if !req.NoCache && s.Cache != nil {
		hit, found, err := s.Cache.Lookup(ctx, req.Prompt)
		switch {
		case err != nil:
			s.Logger.Warn("cache lookup failed, regenerating", map[string]interface{}{"error": err.Error()})
		case found:
			s.Logger.Info("serving cached suggestion", map[string]interface{}{
				"use_count":    hit.UseCount,
				"success_rate": hit.SuccessRate(),
			})
			resp.Suggestions = []domain.Suggestion{hit}
			resp.FromCache = true
			return resp, nil
		}
	}

	bundle, err := s.Assembler.Build(ctx, req.Prompt)
	if err != nil {
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		s.Logger.Warn("using partial context", map[string]interface{}{"error": err.Error()})
	}
	resp.Category = bundle.Category

	limit := s.limit(req.MaxSuggestions)
	s.Logger.Info("calling generator", map[string]interface{}{
		"category":    string(bundle.Category),
		"suggestions": limit,
	})
	gen, err := s.Generator.Generate(ctx, ports.GenerateRequest{
		Prompt:         req.Prompt,
		Bundle:         bundle,
		MaxSuggestions: limit,
		Explain:        req.Explain,
	})
	if err != nil {
		return resp, fmt.Errorf("generator: %w", err)
	}

	candidates, discarded := s.vet(gen.Candidates, limit)
	resp.Discarded = discarded
	if len(discarded) > 0 {
		s.Logger.Debug("discarded candidates", map[string]interface{}{"commands": discarded})
	}
	if len(candidates) == 0 {
		return resp, domain.ErrNoCandidates
	}

	resp.Suggestions = s.persist(ctx, req.Prompt, candidates)
	return resp, nil
}

// vet sanitizes candidates and drops those naming a missing executable.
func (s *Service) vet(candidates []domain.Candidate, limit int) ([]domain.Candidate, []string) {
	var (
		kept      []domain.Candidate
		discarded []string
	)
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		command, ok := domain.SanitizeCommand(c.Command)
		if !ok {
			discarded = append(discarded, c.Command)
			continue
		}
		exe := domain.ExtractExecutable(command)
		if exe == "" || (!domain.IsShellBuiltin(exe) && !s.Checker.Exists(exe)) {
			discarded = append(discarded, command)
			continue
		}
		if _, dup := seen[command]; dup {
			continue
		}
		seen[command] = struct{}{}
		if len(kept) == limit {
			continue
		}
		c.Command = command
		c.Confidence = domain.ClampConfidence(c.Confidence)
		kept = append(kept, c)
	}
	return kept, discarded
}

// persist upserts each candidate as a fresh entry. When the store is
// unavailable the candidates are still returned, just not cached.
func (s *Service) persist(ctx context.Context, prompt string, candidates []domain.Candidate) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, len(candidates))
	var errs []error
	for _, c := range candidates {
		if s.Store != nil {
			saved, err := s.Store.UpsertSuggestion(ctx, prompt, c)
			if err == nil {
				out = append(out, saved)
				continue
			}
			errs = append(errs, err)
		}
		out = append(out, s.transient(prompt, c))
	}
	if err := errors.Join(errs...); err != nil {
		s.Logger.Warn("suggestions not cached", map[string]interface{}{"error": err.Error()})
	}
	return out
}

func (s *Service) transient(prompt string, c domain.Candidate) domain.Suggestion {
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	ts := now().UTC()
	return domain.Suggestion{
		PromptHash:  domain.PromptHash(prompt),
		Prompt:      prompt,
		Command:     c.Command,
		Explanation: c.Explanation,
		Confidence:  c.Confidence,
		CreatedAt:   ts,
		LastUsed:    ts,
	}
}

func (s *Service) limit(requested int) int {
	switch {
	case requested > 0:
		return requested
	case s.MaxSuggestions > 0:
		return s.MaxSuggestions
	default:
		return domain.DefaultMaxSuggestions
	}
}
