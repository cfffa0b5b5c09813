package ai

import (
	"encoding/json"
	"strings"

	"github.com/phloem-sh/phloem/internal/domain"
)

// textFallbackConfidence is assigned to commands scraped from free text.
const textFallbackConfidence = 0.6

const maxFallbackLineLength = 200

var dangerousPatterns = []string{"rm -rf /", "rm -rf *", "dd if=", "mkfs", "fdisk", "> /dev/"}

var commonExecutables = map[string]bool{
	"ls": true, "cd": true, "grep": true, "find": true, "docker": true, "kubectl": true,
	"git": true, "curl": true, "wget": true, "ssh": true, "sudo": true, "cp": true,
	"mv": true, "rm": true, "cat": true, "tail": true, "head": true, "ps": true,
	"kill": true, "top": true, "df": true, "du": true, "tar": true, "zip": true, "unzip": true,
}

type commandsPayload struct {
	Commands []struct {
		Command     string   `json:"command"`
		Explanation string   `json:"explanation"`
		Confidence  *float64 `json:"confidence,omitempty"`
	} `json:"commands"`
}

// parseCandidates reads the model reply. The JSON shape requested by the
// prompt is tried first; anything else is scanned line by line.
func parseCandidates(raw string, limit int) []domain.Candidate {
	if limit <= 0 {
		limit = domain.DefaultMaxSuggestions
	}
	if out := parseJSONCandidates(raw, limit); len(out) > 0 {
		return out
	}
	return parseTextCandidates(raw, limit)
}

func parseJSONCandidates(raw string, limit int) []domain.Candidate {
	body := strings.TrimSpace(raw)
	if start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); start >= 0 && end > start {
		body = body[start : end+1]
	}
	var payload commandsPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil
	}
	out := make([]domain.Candidate, 0, limit)
	for _, c := range payload.Commands {
		cmd := strings.TrimSpace(c.Command)
		if !acceptable(cmd) {
			continue
		}
		confidence := domain.FallbackConfidence
		if c.Confidence != nil {
			confidence = *c.Confidence
		}
		out = append(out, domain.Candidate{
			Command:     cmd,
			Explanation: strings.TrimSpace(c.Explanation),
			Confidence:  confidence,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

func parseTextCandidates(raw string, limit int) []domain.Candidate {
	var out []domain.Candidate
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			inBlock = !inBlock
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") || len(line) > maxFallbackLineLength {
			continue
		}
		explicit := inBlock
		if strings.HasPrefix(line, "$ ") {
			line = strings.TrimSpace(line[2:])
			explicit = true
		}
		if !explicit && !looksLikeCommand(line) {
			continue
		}
		if !acceptable(line) {
			continue
		}
		out = append(out, domain.Candidate{Command: line, Confidence: textFallbackConfidence})
		if len(out) == limit {
			break
		}
	}
	return out
}

func looksLikeCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	return commonExecutables[fields[0]] || strings.Contains(line, " --") || strings.Contains(line, " | ")
}

func acceptable(cmd string) bool {
	if cmd == "" || strings.HasPrefix(cmd, "#") {
		return false
	}
	for _, p := range dangerousPatterns {
		if strings.Contains(cmd, p) {
			return false
		}
	}
	return true
}
