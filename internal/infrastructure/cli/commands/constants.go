package commands

import "github.com/phloem-sh/phloem/internal/domain"

// Listing defaults
const (
	DefaultHistoryLimit       = domain.DefaultHistoryLimit
	DefaultHistorySearchLimit = domain.DefaultHistorySearchLimit
	DefaultCacheListLimit     = 20
	DefaultShellListLimit     = 20
	TimestampFormat           = "2006-01-02 15:04"
)

// Error messages
const (
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrRecorderUnavailable      = "outcome recorder unavailable"
	ErrKnowledgeUnavailable     = "knowledge manager unavailable"
)

// Messages
const (
	MsgNoHistoryRecorded  = "No history recorded yet."
	MsgNoSuggestions      = "No cached suggestions."
	MsgNoBackups          = "No knowledge backups yet."
	MsgNoEnvironmentFacts = "No environment facts stored. Run `phloem env refresh`."
	MsgNoShellHistory     = "No shell history found."
)
