package app

import (
	"context"
	"errors"
	"os"

	appconfig "github.com/phloem-sh/phloem/internal/application/config"
	"github.com/phloem-sh/phloem/internal/application/contextbuilder"
	"github.com/phloem-sh/phloem/internal/application/doctor"
	"github.com/phloem-sh/phloem/internal/application/outcome"
	"github.com/phloem-sh/phloem/internal/application/query"
	"github.com/phloem-sh/phloem/internal/application/ranking"
	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/ai"
	"github.com/phloem-sh/phloem/internal/infrastructure/config"
	contextcollector "github.com/phloem-sh/phloem/internal/infrastructure/context"
	"github.com/phloem-sh/phloem/internal/infrastructure/executor"
	"github.com/phloem-sh/phloem/internal/infrastructure/knowledge"
	"github.com/phloem-sh/phloem/internal/infrastructure/shellhistory"
	"github.com/phloem-sh/phloem/internal/infrastructure/store"
	"github.com/phloem-sh/phloem/internal/pkg/filesystem"
	"github.com/phloem-sh/phloem/internal/pkg/logger"
)

// Options controls container construction.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config       domain.Config
	ConfigLoader *config.FileLoader
	Logger       *logger.ZapLogger

	// Store is nil when the database could not be opened; StoreErr says why.
	Store    *store.Store
	StoreErr error

	Knowledge    *knowledge.Manager
	ShellHistory *shellhistory.Importer
	ShellSources []shellhistory.Source
	Detector     *contextcollector.Detector
	Generator    *ai.OllamaGenerator
	Executor     *executor.LocalExecutor

	QueryService  *query.Service
	Recorder      *outcome.Recorder
	DoctorService *doctor.Service
}

// BuildContainer constructs the dependency graph. Only configuration and
// logger failures are fatal; an unavailable store leaves the container able
// to generate suggestions without caching them.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Options{Level: cfg.Logging.Level, Verbose: opts.Verbose, File: cfg.Logging.File})
	if err != nil {
		log, err = logger.New(logger.Options{Verbose: opts.Verbose})
		if err != nil {
			return nil, err
		}
		log.Warn("logging config ignored", map[string]interface{}{"level": cfg.Logging.Level, "file": cfg.Logging.File})
	}
	if err := appconfig.Validate(cfg); err != nil {
		log.Warn("configuration has invalid values, run `phloem doctor`", map[string]interface{}{"error": err.Error()})
	}

	c := &Container{Config: cfg, ConfigLoader: cfgLoader, Logger: log}

	c.Store, c.StoreErr = store.Open(ctx, store.Options{Path: cfg.DatabasePath(), Logger: log})
	if c.StoreErr != nil {
		log.Warn("suggestion store unavailable, caching disabled", map[string]interface{}{"error": c.StoreErr.Error()})
	}

	c.Knowledge = knowledge.NewManager(knowledge.Options{
		Path:                   cfg.KnowledgePath(),
		MaxSizeBytes:           cfg.Knowledge.MaxSizeKB * 1024,
		BackupRetention:        cfg.Knowledge.BackupRetention,
		MaxExemplarsPerSection: cfg.Knowledge.MaxExemplarsPerSection,
		Logger:                 log,
	})

	c.ShellSources = shellhistory.DetectSources(cfg.History.ShellHistoryFiles, os.Getenv, filesystem.UserHomeDir())
	c.ShellHistory = newShellHistory(cfg, c.ShellSources, log)

	c.Detector = contextcollector.NewDetector()
	c.Generator = ai.NewOllamaGenerator(ai.Options{
		Endpoint:    cfg.Generator.Endpoint,
		Model:       cfg.Generator.Model,
		Timeout:     cfg.Generator.Timeout,
		Temperature: cfg.Generator.Temperature,
		Logger:      log,
	})
	c.Executor = executor.NewLocalExecutor(cfg.Execution.Shell, os.Stdout, os.Stderr)

	assembler := &contextbuilder.Assembler{
		Knowledge:    c.Knowledge,
		ShellHistory: c.ShellHistory,
		Relevance:    cfg.RelevancePolicy(),
		RecentLimit:  cfg.History.RecentLimit,
		MaxCommands:  cfg.History.MaxMergedCommands,
		Logger:       log,
	}
	c.QueryService = &query.Service{
		Assembler:      assembler,
		Generator:      c.Generator,
		Checker:        executor.NewPathChecker(),
		Logger:         log,
		MaxSuggestions: cfg.Generator.MaxSuggestions,
	}
	c.Recorder = &outcome.Recorder{
		Knowledge:     c.Knowledge,
		RetentionDays: cfg.History.RetentionDays,
		MaxRecords:    cfg.History.MaxRecords,
		Learning:      cfg.Knowledge.LearningEnabled,
		SkipLearning:  cfg.Knowledge.SkipLearning,
		Logger:        log,
	}
	c.DoctorService = &doctor.Service{
		ConfigProvider: cfgLoader,
		Knowledge:      c.Knowledge,
		Generator:      c.Generator,
		Model:          cfg.Generator.Model,
		ShellSources:   sourcePaths(c.ShellSources),
	}

	// Interface fields stay nil without a store so nil checks keep working.
	if c.Store != nil {
		assembler.Store = c.Store
		c.QueryService.Cache = &ranking.Engine{Store: c.Store, Policy: cfg.CachePolicy(), Logger: log}
		c.QueryService.Store = c.Store
		c.Recorder.Store = c.Store
		c.Recorder.History = c.Store
		c.DoctorService.Store = c.Store
	}
	return c, nil
}

func newShellHistory(cfg domain.Config, sources []shellhistory.Source, log *logger.ZapLogger) *shellhistory.Importer {
	opts := shellhistory.Options{
		Sources:      sources,
		ScanLimit:    cfg.History.ShellScanLimit,
		MaxLineBytes: domain.DefaultMaxHistoryLineBytes,
		Denylist:     cfg.History.Denylist,
		Logger:       log,
	}
	imp, err := shellhistory.New(opts)
	if err == nil {
		return imp
	}
	log.Warn("history denylist invalid, using built-in patterns", map[string]interface{}{"error": err.Error()})
	opts.Denylist = nil
	imp, _ = shellhistory.New(opts)
	return imp
}

func sourcePaths(sources []shellhistory.Source) []string {
	paths := make([]string, 0, len(sources))
	for _, s := range sources {
		paths = append(paths, s.Path)
	}
	return paths
}

// RequireStore returns the store or the reason it is unavailable.
func (c *Container) RequireStore() (*store.Store, error) {
	if c.Store == nil {
		if c.StoreErr != nil {
			return nil, c.StoreErr
		}
		return nil, errors.New("suggestion store unavailable")
	}
	return c.Store, nil
}

// Close releases the store and flushes logs.
func (c *Container) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Logger != nil {
		errs = append(errs, c.Logger.Close())
	}
	return errors.Join(errs...)
}
