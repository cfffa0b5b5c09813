package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/phloem-sh/phloem/assets"
	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/pkg/filesystem"
	"github.com/phloem-sh/phloem/internal/ports"
)

const (
	// EnvConfig overrides the config file location.
	EnvConfig = "PHLOEM_CONFIG"
	// EnvHome overrides the data directory.
	EnvHome = "PHLOEM_HOME"
)

// FileLoader loads YAML configuration from ~/.phloem/config.yaml.
type FileLoader struct {
	overridePath string
	getenv       func(string) string
}

// NewFileLoader builds a new loader. An empty path resolves from the environment.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path, getenv: os.Getenv}
}

// Load implements ports.ConfigProvider. A missing file is created from the
// embedded defaults.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := l.hydrateDefaults(DefaultConfig())
			if err := writeYAML(path, cfg); err != nil {
				return domain.Config{}, fmt.Errorf("write default config: %w", err)
			}
			return cfg, nil
		}
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return l.hydrateDefaults(cfg), nil
}

// Path returns the resolved config file path.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := l.getenv(EnvConfig); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filepath.Join(l.dataDir(), domain.ConfigFileName)
}

func (l *FileLoader) dataDir() string {
	if home := l.getenv(EnvHome); home != "" {
		return filesystem.ExpandPath(home)
	}
	return filepath.Join(filesystem.UserHomeDir(), domain.DefaultDataDirName)
}

// Save writes the given config back to disk.
func (l *FileLoader) Save(cfg domain.Config) error {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return err
	}
	return writeYAML(path, cfg)
}

// Backup copies the current config file to a timestamped backup.
func (l *FileLoader) Backup() (string, error) {
	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backup := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(backup, data, domain.SecureFilePermissions); err != nil {
		return "", err
	}
	return backup, nil
}

// Get returns the YAML rendering of a dotted key such as "cache.min_use_count".
func (l *FileLoader) Get(ctx context.Context, key string) (string, error) {
	cfg, err := l.Load(ctx)
	if err != nil {
		return "", err
	}
	tree, err := toTree(cfg)
	if err != nil {
		return "", err
	}
	value, err := lookup(tree, key)
	if err != nil {
		return "", err
	}
	raw, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Set parses raw as YAML, stores it under a dotted key and returns the
// resulting config without saving it, so callers can validate first.
func (l *FileLoader) Set(ctx context.Context, key, raw string) (domain.Config, error) {
	cfg, err := l.Load(ctx)
	if err != nil {
		return domain.Config{}, err
	}
	tree, err := toTree(cfg)
	if err != nil {
		return domain.Config{}, err
	}
	var value interface{}
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return domain.Config{}, fmt.Errorf("parse value: %w", err)
	}
	if err := assign(tree, key, value); err != nil {
		return domain.Config{}, err
	}
	encoded, err := yaml.Marshal(tree)
	if err != nil {
		return domain.Config{}, err
	}
	var updated domain.Config
	if err := yaml.Unmarshal(encoded, &updated); err != nil {
		return domain.Config{}, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	hydrated := l.hydrateDefaults(updated)
	if err := checkNotDefaulted(key, value, hydrated); err != nil {
		return domain.Config{}, err
	}
	return hydrated, nil
}

// checkNotDefaulted rejects a numeric value that hydration would silently
// replace, such as a zero threshold.
func checkNotDefaulted(key string, set interface{}, hydrated domain.Config) error {
	var want float64
	switch v := set.(type) {
	case int:
		want = float64(v)
	case float64:
		want = v
	default:
		return nil
	}
	tree, err := toTree(hydrated)
	if err != nil {
		return err
	}
	got, err := lookup(tree, key)
	if err != nil {
		return err
	}
	var have float64
	switch v := got.(type) {
	case int:
		have = float64(v)
	case float64:
		have = v
	default:
		return nil
	}
	if have != want {
		return fmt.Errorf("%s: %v is not allowed (it means \"use the default\", %v)", key, set, got)
	}
	return nil
}

// Keys lists every settable dotted key.
func Keys() []string {
	tree, err := toTree(DefaultConfig())
	if err != nil {
		return nil
	}
	var keys []string
	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, v := range node {
			full := k
			if prefix != "" {
				full = prefix + "." + k
			}
			if child, ok := v.(map[string]interface{}); ok {
				walk(full, child)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk("", tree)
	sort.Strings(keys)
	return keys
}

// DefaultConfig parses the embedded defaults.
func DefaultConfig() domain.Config {
	var cfg domain.Config
	if err := yaml.Unmarshal(assets.DefaultConfigYAML, &cfg); err != nil {
		return fallbackConfig()
	}
	return cfg
}

func fallbackConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Generator: domain.GeneratorSettings{
			Endpoint:       domain.DefaultGeneratorEndpoint,
			Model:          domain.DefaultGeneratorModel,
			Timeout:        domain.DefaultGeneratorTimeout,
			MaxSuggestions: domain.DefaultMaxSuggestions,
		},
		Knowledge: domain.KnowledgeSettings{LearningEnabled: true},
		Relevance: domain.RelevanceSettings{SubstringMatch: true},
	}
}

// hydrateDefaults fills zero values so a partial file still yields a usable config.
func (l *FileLoader) hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = l.dataDir()
	} else {
		cfg.DataDir = filesystem.ExpandPath(cfg.DataDir)
	}

	g := &cfg.Generator
	if g.Endpoint == "" {
		g.Endpoint = domain.DefaultGeneratorEndpoint
	}
	if g.Model == "" {
		g.Model = domain.DefaultGeneratorModel
	}
	if g.Timeout <= 0 {
		g.Timeout = domain.DefaultGeneratorTimeout
	}
	if g.MaxSuggestions <= 0 {
		g.MaxSuggestions = domain.DefaultMaxSuggestions
	}

	c := &cfg.Cache
	if c.MinUseCount <= 0 {
		c.MinUseCount = domain.DefaultMinUseCount
	}
	if c.MinSuccessRate <= 0 {
		c.MinSuccessRate = domain.DefaultMinSuccessRate
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = domain.DefaultCacheMaxAgeDays
	}

	k := &cfg.Knowledge
	if k.MaxSizeKB <= 0 {
		k.MaxSizeKB = domain.DefaultKnowledgeMaxSizeKB
	}
	if k.BackupRetention <= 0 {
		k.BackupRetention = domain.DefaultBackupRetention
	}
	if k.MaxExemplarsPerSection <= 0 {
		k.MaxExemplarsPerSection = domain.DefaultMaxExemplarsPerSection
	}

	h := &cfg.History
	if h.RecentLimit <= 0 {
		h.RecentLimit = domain.DefaultRecentHistoryLimit
	}
	if h.RetentionDays < 0 {
		h.RetentionDays = 0
	}
	if h.MaxRecords < 0 {
		h.MaxRecords = 0
	}
	if h.ShellScanLimit <= 0 {
		h.ShellScanLimit = domain.DefaultShellScanLimit
	}
	if h.MaxMergedCommands <= 0 {
		h.MaxMergedCommands = domain.DefaultMaxMergedCommands
	}
	for i, f := range h.ShellHistoryFiles {
		h.ShellHistoryFiles[i] = filesystem.ExpandPath(f)
	}

	r := &cfg.Relevance
	if r.MinTokenLength <= 0 {
		r.MinTokenLength = domain.DefaultMinTokenLength
	}
	if r.Threshold <= 0 {
		r.Threshold = domain.DefaultRelevanceThreshold
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.File != "" {
		cfg.Logging.File = filesystem.ExpandPath(cfg.Logging.File)
	}
	if cfg.Execution.Shell == "" {
		cfg.Execution.Shell = "auto"
	}
	return cfg
}

func ensureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions)
}

func writeYAML(path string, cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, domain.SecureFilePermissions)
}

func toTree(cfg domain.Config) (map[string]interface{}, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func lookup(tree map[string]interface{}, key string) (interface{}, error) {
	var node interface{} = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unknown config key %q", key)
		}
		if node, ok = m[part]; !ok {
			return nil, fmt.Errorf("unknown config key %q", key)
		}
	}
	return node, nil
}

func assign(tree map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		node = child
	}
	last := parts[len(parts)-1]
	current, ok := node[last]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if _, isSection := current.(map[string]interface{}); isSection {
		return fmt.Errorf("%q is a section, set one of its keys instead", key)
	}
	node[last] = value
	return nil
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
