package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
	// DocumentFilePermissions is the permission for the knowledge document and backups (rw-r--r--)
	DocumentFilePermissions = 0o644
)

// Layout under the data directory.
const (
	DefaultDataDirName     = ".phloem"
	ConfigFileName         = "config.yaml"
	CacheDirName           = "cache"
	DatabaseFileName       = "suggestions.db"
	KnowledgeFileName      = "PHLOEM.md"
	KnowledgeSchemaVersion = 1
)

// Cache eligibility defaults.
const (
	DefaultMinUseCount     = 5
	DefaultMinSuccessRate  = 0.7
	DefaultCacheMaxAgeDays = 7
	// NeutralSuccessRate is reported for a suggestion that has never been used.
	NeutralSuccessRate = 0.5
	// FallbackConfidence is assigned to candidates the generator returned without a score.
	FallbackConfidence = 0.8
	// ScoreSuccessWeight and ScoreConfidenceWeight combine into the cache ranking score.
	ScoreSuccessWeight    = 0.6
	ScoreConfidenceWeight = 0.4
	// HighSuccessRate is the threshold reported by cache statistics.
	HighSuccessRate = 0.8
)

// Knowledge document defaults.
const (
	DefaultKnowledgeMaxSizeKB      = 50
	DefaultBackupRetention         = 5
	DefaultMaxExemplarsPerSection  = 20
	DefaultKnowledgeLockRetryDelay = 50 * time.Millisecond
)

// History constants
const (
	// DefaultRecentHistoryLimit is the number of internal history records merged into a bundle
	DefaultRecentHistoryLimit = 10
	// DefaultHistoryLimit is the default number of history records to display
	DefaultHistoryLimit = 20
	// DefaultHistorySearchLimit is the default number of search results to return
	DefaultHistorySearchLimit = 50
	// DefaultHistoryRetainDays is the default number of days to retain history
	DefaultHistoryRetainDays = 90
	// DefaultHistoryMaxRecords bounds the history table after pruning
	DefaultHistoryMaxRecords = 10000
	// DefaultShellScanLimit is how many shell history lines are inspected per bundle
	DefaultShellScanLimit = 100
	// DefaultMaxMergedCommands caps the merged recent command list in a bundle
	DefaultMaxMergedCommands = 20
	// DefaultMaxHistoryLineBytes rejects pathological shell history lines
	DefaultMaxHistoryLineBytes = 4096
)

// Relevance defaults.
const (
	DefaultMinTokenLength     = 3
	DefaultRelevanceThreshold = 0.25
)

// Generator defaults.
const (
	DefaultGeneratorEndpoint = "http://localhost:11434"
	DefaultGeneratorModel    = "gemma3n:e2b"
	DefaultGeneratorTimeout  = 30 * time.Second
	DefaultMaxSuggestions    = 3
	// MaxCommandLength bounds a sanitized candidate command.
	MaxCommandLength = 1000
)

// Timeout and duration constants
const (
	// DefaultCommandTimeout is the default timeout for detection subprocesses
	DefaultCommandTimeout = 2 * time.Second
	// MaxDetectedTools bounds the available_tools environment fact
	MaxDetectedTools = 20
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
