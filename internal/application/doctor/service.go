// Package doctor checks that every component phloem depends on is usable.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	appconfig "github.com/phloem-sh/phloem/internal/application/config"
	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Store          ports.CacheInspector
	Knowledge      ports.KnowledgeManager
	Generator      ports.GeneratorProbe
	Model          string
	ShellSources   []string
}

// Run executes checks and returns a report. The error is non-nil only when
// the configuration itself cannot be loaded.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	if s.ConfigProvider == nil {
		return domain.HealthReport{}, errors.New("doctor.Service dependencies not satisfied")
	}
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	checks = append(checks, ok("Config file", fmt.Sprintf("loaded format %s", cfg.ConfigFormatVersion)))
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail("Config values", strings.ReplaceAll(err.Error(), "\n", "; ")))
	} else {
		checks = append(checks, ok("Config values", "valid"))
	}
	checks = append(checks, dataDirCheck(cfg.DataDir))
	checks = append(checks, s.storeCheck(ctx, cfg))
	checks = append(checks, s.knowledgeChecks(ctx, cfg)...)
	checks = append(checks, s.generatorCheck(ctx))
	checks = append(checks, s.shellHistoryCheck())

	return domain.HealthReport{Checks: checks}, nil
}

func dataDirCheck(dir string) domain.HealthCheck {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return warn("Data directory", fmt.Sprintf("%s missing, run `phloem init`", dir))
	case err != nil:
		return fail("Data directory", err.Error())
	case !info.IsDir():
		return fail("Data directory", fmt.Sprintf("%s is not a directory", dir))
	}
	return ok("Data directory", dir)
}

func (s *Service) storeCheck(ctx context.Context, cfg domain.Config) domain.HealthCheck {
	if s.Store == nil {
		return fail("Suggestion store", "store not initialized")
	}
	stats, err := s.Store.Stats(ctx, cfg.CachePolicy())
	if err != nil {
		return fail("Suggestion store", err.Error())
	}
	return ok("Suggestion store", fmt.Sprintf("schema v%d, %d suggestions (%d cacheable), %d history records, %s",
		stats.SchemaVersion, stats.TotalSuggestions, stats.EligibleCount, stats.HistoryCount,
		humanize.Bytes(uint64(stats.DatabaseSizeBytes))))
}

func (s *Service) knowledgeChecks(ctx context.Context, cfg domain.Config) []domain.HealthCheck {
	if s.Knowledge == nil {
		return []domain.HealthCheck{fail("Knowledge document", "knowledge manager not initialized")}
	}
	doc, err := s.Knowledge.Load(ctx)
	if err != nil {
		return []domain.HealthCheck{fail("Knowledge document", err.Error())}
	}
	text, err := s.Knowledge.Read(ctx)
	if err != nil {
		return []domain.HealthCheck{fail("Knowledge document", err.Error())}
	}

	exemplars := 0
	for _, sec := range doc.Sections {
		exemplars += len(sec.Exemplars)
	}
	size := uint64(len(text))
	ceiling := uint64(cfg.Knowledge.MaxSizeKB) * 1024
	details := fmt.Sprintf("revision %d, %d sections, %d exemplars, %s of %s",
		doc.Revision, len(doc.Sections), exemplars, humanize.Bytes(size), humanize.Bytes(ceiling))
	doccheck := ok("Knowledge document", details)
	if ceiling > 0 && size > ceiling {
		doccheck = warn("Knowledge document", details+" (over ceiling)")
	}

	backups, err := s.Knowledge.Backups()
	var bcheck domain.HealthCheck
	switch {
	case err != nil:
		bcheck = warn("Knowledge backups", err.Error())
	case len(backups) > cfg.Knowledge.BackupRetention:
		bcheck = warn("Knowledge backups", fmt.Sprintf("%d kept, retention is %d", len(backups), cfg.Knowledge.BackupRetention))
	default:
		bcheck = ok("Knowledge backups", fmt.Sprintf("%d of %d", len(backups), cfg.Knowledge.BackupRetention))
	}
	return []domain.HealthCheck{doccheck, bcheck}
}

func (s *Service) generatorCheck(ctx context.Context) domain.HealthCheck {
	if s.Generator == nil {
		return fail("Generator", "generator not initialized")
	}
	var (
		version string
		models  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		version, err = s.Generator.Version(gctx)
		return err
	})
	g.Go(func() (err error) {
		models, err = s.Generator.Models(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fail("Generator", fmt.Sprintf("unreachable: %v", err))
	}
	if s.Model != "" && !hasModel(models, s.Model) {
		return warn("Generator", fmt.Sprintf("ollama %s, model %s not pulled (run `ollama pull %s`)", version, s.Model, s.Model))
	}
	return ok("Generator", fmt.Sprintf("ollama %s, model %s", version, s.Model))
}

func hasModel(models []string, want string) bool {
	if slices.Contains(models, want) {
		return true
	}
	// "llama3" is served as "llama3:latest".
	return !strings.Contains(want, ":") && slices.Contains(models, want+":latest")
}

func (s *Service) shellHistoryCheck() domain.HealthCheck {
	if len(s.ShellSources) == 0 {
		return warn("Shell history", "no history file detected")
	}
	var readable, problems []string
	for _, path := range s.ShellSources {
		f, err := os.Open(path)
		if err != nil {
			problems = append(problems, path)
			continue
		}
		_ = f.Close()
		readable = append(readable, path)
	}
	if len(readable) == 0 {
		return warn("Shell history", "unreadable: "+strings.Join(problems, ", "))
	}
	if len(problems) > 0 {
		return warn("Shell history", fmt.Sprintf("%s (unreadable: %s)", strings.Join(readable, ", "), strings.Join(problems, ", ")))
	}
	return ok("Shell history", strings.Join(readable, ", "))
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
