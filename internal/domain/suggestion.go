package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"
)

// Suggestion is a cached prompt/command pair with its usage statistics.
type Suggestion struct {
	PromptHash   string    `json:"prompt_hash"`
	Prompt       string    `json:"prompt"`
	Command      string    `json:"suggestion"`
	Explanation  string    `json:"explanation,omitempty"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsed     time.Time `json:"last_used"`
	UseCount     int       `json:"use_count"`
	SuccessCount int       `json:"success_count"`
}

// SuccessRate is derived from the counters on every read.
func (s Suggestion) SuccessRate() float64 {
	if s.UseCount <= 0 {
		return NeutralSuccessRate
	}
	return float64(s.SuccessCount) / float64(s.UseCount)
}

// Candidate is a generated command that has not been persisted yet.
type Candidate struct {
	Command     string
	Explanation string
	Confidence  float64
}

// NormalizePrompt lowercases, trims and collapses internal whitespace.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// NormalizeCommand trims and collapses whitespace without changing case.
func NormalizeCommand(command string) string {
	return strings.Join(strings.Fields(command), " ")
}

// PromptHash is the stable identity of a prompt: hex sha256 of its normalized form.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(NormalizePrompt(prompt)))
	return hex.EncodeToString(sum[:])
}

// ClampConfidence keeps a confidence value inside [0, 1].
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
