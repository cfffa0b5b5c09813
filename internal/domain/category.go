package domain

import (
	"strings"
	"unicode"
)

// Category names a knowledge document section.
type Category string

const (
	CategoryDocker       Category = "Docker"
	CategoryKubernetes   Category = "Kubernetes"
	CategoryGit          Category = "Git"
	CategoryFiles        Category = "File Management"
	CategoryProcesses    Category = "Process Management"
	CategoryNetwork      Category = "Networking"
	CategoryPackages     Category = "Package Management"
	CategoryUnclassified Category = "General"
)

type categoryRule struct {
	category    Category
	keywords    []string
	executables []string
}

// Order matters: the first rule with a matching token wins.
var categoryRules = []categoryRule{
	{CategoryDocker, []string{"docker", "container", "containers", "image", "images", "compose", "dockerfile"}, []string{"docker", "docker-compose", "podman"}},
	{CategoryKubernetes, []string{"kubernetes", "kubectl", "k8s", "pod", "pods", "deployment", "deployments", "namespace", "helm"}, []string{"kubectl", "helm", "k9s", "minikube", "kind"}},
	{CategoryGit, []string{"git", "commit", "commits", "branch", "branches", "merge", "rebase", "repo", "repository", "stash"}, []string{"git", "gh"}},
	{CategoryFiles, []string{"file", "files", "find", "directory", "directories", "folder", "folders", "copy", "move", "rename", "delete", "disk", "size"}, []string{"ls", "find", "cp", "mv", "rm", "du", "df", "tar", "zip", "unzip", "chmod", "chown", "mkdir", "fd"}},
	{CategoryProcesses, []string{"process", "processes", "kill", "pid", "ps", "cpu", "memory", "running"}, []string{"ps", "kill", "pkill", "top", "htop", "lsof"}},
	{CategoryNetwork, []string{"port", "ports", "network", "ip", "dns", "http", "download", "ping", "curl", "ssh"}, []string{"curl", "wget", "ping", "netstat", "ss", "dig", "nslookup", "ssh", "scp"}},
	{CategoryPackages, []string{"install", "package", "packages", "dependency", "dependencies", "upgrade", "brew", "apt", "npm", "pip"}, []string{"brew", "apt", "apt-get", "dnf", "yum", "pacman", "npm", "yarn", "pnpm", "pip", "pip3", "go", "cargo"}},
}

// Categories lists every classifiable category, excluding the fallback.
func Categories() []Category {
	out := make([]Category, 0, len(categoryRules))
	for _, rule := range categoryRules {
		out = append(out, rule.category)
	}
	return out
}

// Categorize classifies a natural-language prompt by keyword tokens.
func Categorize(prompt string) Category {
	tokens := make(map[string]struct{})
	for _, tok := range Tokenize(prompt, 1) {
		tokens[tok] = struct{}{}
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if _, ok := tokens[kw]; ok {
				return rule.category
			}
		}
	}
	return CategoryUnclassified
}

// CategorizeCommand classifies a shell command by its executable.
func CategorizeCommand(command string) Category {
	exe := ExtractExecutable(command)
	if exe == "" {
		return CategoryUnclassified
	}
	for _, rule := range categoryRules {
		for _, name := range rule.executables {
			if exe == name {
				return rule.category
			}
		}
	}
	return CategoryUnclassified
}

// DeriveCategory prefers the prompt's category and falls back to the command's.
func DeriveCategory(prompt, command string) Category {
	if c := Categorize(prompt); c != CategoryUnclassified {
		return c
	}
	return CategorizeCommand(command)
}

// Tokenize splits text into lowercase alphanumeric runs of at least minLen runes.
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minLen {
			out = append(out, f)
		}
	}
	return out
}
