package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/phloem-sh/phloem/internal/domain"
)

// Validate ensures config structure is consistent. Every problem is reported,
// not just the first.
func Validate(cfg domain.Config) error {
	return errors.Join(
		validateGenerator(cfg.Generator),
		validateCache(cfg.Cache),
		validateKnowledge(cfg.Knowledge),
		validateHistory(cfg.History),
		validateRelevance(cfg.Relevance),
		validateLogging(cfg.Logging),
	)
}

func validateGenerator(g domain.GeneratorSettings) error {
	u, err := url.Parse(g.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("generator.endpoint must be an http(s) URL, got %q", g.Endpoint)
	}
	if strings.TrimSpace(g.Model) == "" {
		return errors.New("generator.model must be set")
	}
	if g.Timeout <= 0 {
		return errors.New("generator.timeout must be > 0")
	}
	if g.MaxSuggestions <= 0 || g.MaxSuggestions > 10 {
		return fmt.Errorf("generator.max_suggestions must be between 1 and 10, got %d", g.MaxSuggestions)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("generator.temperature must be between 0 and 2, got %v", g.Temperature)
	}
	return nil
}

func validateCache(cache domain.CacheSettings) error {
	if cache.MinUseCount <= 0 {
		return errors.New("cache.min_use_count must be > 0")
	}
	if cache.MinSuccessRate <= 0 || cache.MinSuccessRate >= 1 {
		return fmt.Errorf("cache.min_success_rate must be in (0, 1), got %v", cache.MinSuccessRate)
	}
	if cache.MaxAgeDays <= 0 {
		return errors.New("cache.max_age_days must be > 0")
	}
	return nil
}

func validateKnowledge(k domain.KnowledgeSettings) error {
	if k.MaxSizeKB <= 0 {
		return errors.New("knowledge.max_size_kb must be > 0")
	}
	if k.BackupRetention <= 0 {
		return errors.New("knowledge.backup_retention must be > 0")
	}
	if k.MaxExemplarsPerSection <= 0 {
		return errors.New("knowledge.max_exemplars_per_section must be > 0")
	}
	return nil
}

func validateHistory(history domain.HistorySettings) error {
	if history.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if history.MaxRecords < 0 {
		return errors.New("history.max_records must be >= 0")
	}
	if history.RecentLimit <= 0 {
		return errors.New("history.recent_limit must be > 0")
	}
	for _, p := range history.Denylist {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("history.denylist pattern %q invalid: %w", p, err)
		}
	}
	return nil
}

func validateRelevance(r domain.RelevanceSettings) error {
	if r.MinTokenLength <= 0 {
		return errors.New("relevance.min_token_length must be > 0")
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return fmt.Errorf("relevance.relevance_threshold must be in [0, 1], got %v", r.Threshold)
	}
	return nil
}

func validateLogging(l domain.LoggingSettings) error {
	if l.Level == "" {
		return nil
	}
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("logging.level invalid: %w", err)
	}
	return nil
}
