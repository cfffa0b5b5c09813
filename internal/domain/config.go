package domain

import (
	"path/filepath"
	"time"
)

// Config mirrors ~/.phloem/config.yaml.
type Config struct {
	ConfigFormatVersion string            `yaml:"config_format_version"`
	DataDir             string            `yaml:"data_dir"`
	Generator           GeneratorSettings `yaml:"generator"`
	Cache               CacheSettings     `yaml:"cache"`
	Knowledge           KnowledgeSettings `yaml:"knowledge"`
	History             HistorySettings   `yaml:"history"`
	Relevance           RelevanceSettings `yaml:"relevance"`
	Logging             LoggingSettings   `yaml:"logging"`
	Execution           ExecutionSettings `yaml:"execution"`
}

// GeneratorSettings configures the local model endpoint.
type GeneratorSettings struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxSuggestions int           `yaml:"max_suggestions"`
	Temperature    float64       `yaml:"temperature"`
}

// CacheSettings holds the cache eligibility thresholds. A zero or negative
// value in the file means the default is used.
type CacheSettings struct {
	MinUseCount    int     `yaml:"min_use_count"`
	MinSuccessRate float64 `yaml:"min_success_rate"`
	MaxAgeDays     int     `yaml:"max_age_days"`
}

// KnowledgeSettings configures the knowledge document.
type KnowledgeSettings struct {
	MaxSizeKB              int      `yaml:"max_size_kb"`
	BackupRetention        int      `yaml:"backup_retention"`
	MaxExemplarsPerSection int      `yaml:"max_exemplars_per_section"`
	LearningEnabled        bool     `yaml:"learning_enabled"`
	SkipLearning           []string `yaml:"skip_learning"`
}

// HistorySettings configures internal and shell history handling.
type HistorySettings struct {
	RecentLimit       int      `yaml:"recent_limit"`
	RetentionDays     int      `yaml:"retention_days"`
	MaxRecords        int      `yaml:"max_records"`
	ShellHistoryFiles []string `yaml:"shell_history_files"`
	ShellScanLimit    int      `yaml:"shell_scan_limit"`
	MaxMergedCommands int      `yaml:"max_merged_commands"`
	Denylist          []string `yaml:"denylist"`
	IgnoreCommands    []string `yaml:"ignore_commands"`
}

// RelevanceSettings tunes the history relevance filter.
type RelevanceSettings struct {
	MinTokenLength int     `yaml:"min_token_length"`
	Threshold      float64 `yaml:"relevance_threshold"`
	SubstringMatch bool    `yaml:"substring_match"`
}

// LoggingSettings controls log verbosity and an optional file sink.
type LoggingSettings struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ExecutionSettings controls how selected commands run.
type ExecutionSettings struct {
	Shell                string `yaml:"shell"`
	ConfirmBeforeExecute bool   `yaml:"confirm_before_execute"`
}

// DatabasePath is the suggestion store location under the data directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, CacheDirName, DatabaseFileName)
}

// KnowledgePath is the knowledge document location under the data directory.
func (c Config) KnowledgePath() string {
	return filepath.Join(c.DataDir, KnowledgeFileName)
}

// CachePolicy converts the cache settings.
func (c Config) CachePolicy() CachePolicy {
	return CachePolicy{
		MinUseCount:    c.Cache.MinUseCount,
		MinSuccessRate: c.Cache.MinSuccessRate,
		MaxAge:         time.Duration(c.Cache.MaxAgeDays) * 24 * time.Hour,
	}
}

// RelevancePolicy converts the relevance settings.
func (c Config) RelevancePolicy() RelevancePolicy {
	return RelevancePolicy{
		MinTokenLength: c.Relevance.MinTokenLength,
		Threshold:      c.Relevance.Threshold,
		SubstringMatch: c.Relevance.SubstringMatch,
		Ignore:         c.History.IgnoreCommands,
	}
}
