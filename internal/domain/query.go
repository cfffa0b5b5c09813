package domain

import "time"

// SuggestRequest captures user intent originating from the CLI.
type SuggestRequest struct {
	Prompt         string
	NoCache        bool
	Explain        bool
	MaxSuggestions int
}

// SuggestResponse is the canonical response propagated back to the CLI.
type SuggestResponse struct {
	Prompt      string
	Category    Category
	Suggestions []Suggestion
	FromCache   bool
	// Discarded holds candidates dropped because their executable is missing.
	Discarded []string
}

// OutcomeRequest describes what happened after the user acted on a suggestion.
type OutcomeRequest struct {
	Prompt    string
	Command   string
	Succeeded bool
	ExitCode  *int
}

// OutcomeResult reports what the recorder committed.
type OutcomeResult struct {
	SuggestionFound bool
	HistoryID       int64
	Learned         bool
	Category        Category
}

// ExecutionResult wraps details from the command executor.
type ExecutionResult struct {
	Ran      bool
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// CacheStats summarises the suggestion store.
type CacheStats struct {
	TotalSuggestions  int
	EligibleCount     int
	HighSuccessCount  int
	AverageSuccess    float64
	HistoryCount      int
	EnvironmentFacts  int
	SchemaVersion     int
	DatabaseSizeBytes int64
}
