// Package contextbuilder assembles the bounded context bundle handed to the
// generator on a cache miss.
package contextbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Assembler merges knowledge, history and environment facts into a bundle.
type Assembler struct {
	Knowledge    ports.KnowledgeReader
	Store        ports.ContextStore
	ShellHistory ports.ShellHistorySource
	Relevance    domain.RelevancePolicy
	RecentLimit  int
	MaxCommands  int
	Logger       ports.Logger
}

// Build returns a bundle for prompt. The bundle is always usable: when a
// source fails its part is left empty and the failures are returned joined,
// so callers can log and carry on.
func (a *Assembler) Build(ctx context.Context, prompt string) (domain.ContextBundle, error) {
	bundle := domain.MinimalBundle(prompt)
	if err := ctx.Err(); err != nil {
		return bundle, err
	}

	var errs []error
	if a.Knowledge != nil {
		if err := a.addKnowledge(ctx, &bundle); err != nil {
			errs = append(errs, fmt.Errorf("knowledge: %w", err))
		}
	}

	var internal []string
	if a.Store != nil {
		facts, err := a.Store.EnvironmentFacts(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("environment facts: %w", err))
		} else {
			domain.SortFacts(facts)
			bundle.Environment = facts
		}

		records, err := a.Store.ListRecentHistory(ctx, a.recentLimit())
		if err != nil {
			errs = append(errs, fmt.Errorf("recent history: %w", err))
		}
		for _, r := range records {
			if r.Success {
				internal = append(internal, r.Command)
			}
		}
	}

	bundle.RecentCommands = a.mergeCommands(prompt, bundle.Category, internal)

	err := errors.Join(errs...)
	if err != nil && a.Logger != nil {
		a.Logger.Warn("context assembled with missing sources", map[string]interface{}{"error": err.Error()})
	}
	if a.Logger != nil {
		a.Logger.Debug("context assembled", map[string]interface{}{
			"category":        string(bundle.Category),
			"sections":        len(bundle.Sections),
			"facts":           len(bundle.Environment),
			"recent_commands": len(bundle.RecentCommands),
		})
	}
	return bundle, err
}

func (a *Assembler) addKnowledge(ctx context.Context, bundle *domain.ContextBundle) error {
	text, err := a.Knowledge.Read(ctx)
	if err != nil {
		return err
	}
	bundle.Knowledge = text

	doc, err := a.Knowledge.Load(ctx)
	if err != nil {
		return err
	}
	bundle.Sections = orderSections(doc.Sections, bundle.Category)
	return nil
}

// orderSections puts the prompt's category first and keeps the rest in
// document order.
func orderSections(sections []domain.Section, category domain.Category) []domain.Section {
	if len(sections) == 0 {
		return nil
	}
	out := make([]domain.Section, 0, len(sections))
	for _, s := range sections {
		if s.Name == category {
			out = append(out, s)
		}
	}
	for _, s := range sections {
		if s.Name != category {
			out = append(out, s)
		}
	}
	return out
}

// mergeCommands lists internal history before shell history, each most recent
// first, deduplicated by normalized text and relevance filtered.
func (a *Assembler) mergeCommands(prompt string, category domain.Category, internal []string) []string {
	limit := a.maxCommands()
	seen := make(map[string]struct{})
	var merged []string

	add := func(command string) bool {
		normalized := domain.NormalizeCommand(command)
		if normalized == "" {
			return true
		}
		if _, dup := seen[normalized]; dup {
			return true
		}
		seen[normalized] = struct{}{}
		if !a.Relevance.Relevant(prompt, category, normalized) {
			return true
		}
		merged = append(merged, normalized)
		return len(merged) < limit
	}

	for _, cmd := range internal {
		if !add(cmd) {
			return merged
		}
	}
	if a.ShellHistory == nil {
		return merged
	}
	for cmd := range a.ShellHistory.Commands() {
		if !add(cmd) {
			break
		}
	}
	return merged
}

func (a *Assembler) recentLimit() int {
	if a.RecentLimit > 0 {
		return a.RecentLimit
	}
	return domain.DefaultRecentHistoryLimit
}

func (a *Assembler) maxCommands() int {
	if a.MaxCommands > 0 {
		return a.MaxCommands
	}
	return domain.DefaultMaxMergedCommands
}
