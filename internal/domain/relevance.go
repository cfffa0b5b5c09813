package domain

import "strings"

// RelevancePolicy filters history entries against a prompt.
type RelevancePolicy struct {
	MinTokenLength int
	Threshold      float64
	SubstringMatch bool
	// Ignore lists executables whose history entries are never relevant.
	Ignore []string
}

// DefaultRelevancePolicy mirrors the shipped configuration.
func DefaultRelevancePolicy() RelevancePolicy {
	return RelevancePolicy{
		MinTokenLength: DefaultMinTokenLength,
		Threshold:      DefaultRelevanceThreshold,
		SubstringMatch: true,
		Ignore:         []string{"ls", "cd", "pwd", "clear", "exit", "history"},
	}
}

// Overlap is the fraction of prompt tokens matched by some command token.
func (p RelevancePolicy) Overlap(prompt, command string) float64 {
	promptTokens := uniqueTokens(Tokenize(prompt, p.MinTokenLength))
	if len(promptTokens) == 0 {
		return 0
	}
	commandTokens := uniqueTokens(Tokenize(command, p.MinTokenLength))
	matched := 0
	for _, pt := range promptTokens {
		for _, ct := range commandTokens {
			if p.tokensMatch(pt, ct) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(promptTokens))
}

// Relevant keeps a command when its overlap reaches the threshold or when it
// shares a classified category with the prompt.
func (p RelevancePolicy) Relevant(prompt string, promptCategory Category, command string) bool {
	exe := ExtractExecutable(command)
	if exe == "" {
		return false
	}
	for _, ignored := range p.Ignore {
		if exe == ignored {
			return false
		}
	}
	if p.Threshold <= 0 {
		return true
	}
	if p.Overlap(prompt, command) >= p.Threshold {
		return true
	}
	return promptCategory != CategoryUnclassified && CategorizeCommand(command) == promptCategory
}

func (p RelevancePolicy) tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if !p.SubstringMatch {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
