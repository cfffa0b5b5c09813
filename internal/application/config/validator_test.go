package config

import (
	"strings"
	"testing"

	infraconfig "github.com/phloem-sh/phloem/internal/infrastructure/config"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(infraconfig.DefaultConfig()); err != nil {
		t.Fatalf("Validate(defaults) error = %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := infraconfig.DefaultConfig()
	cfg.Generator.Endpoint = "localhost:11434"
	cfg.Cache.MinSuccessRate = 1.5
	cfg.History.Denylist = []string{"("}
	cfg.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"generator.endpoint", "cache.min_success_rate", "history.denylist", "logging.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateRelevanceBounds(t *testing.T) {
	cfg := infraconfig.DefaultConfig()
	cfg.Relevance.Threshold = 1.2
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "relevance_threshold") {
		t.Fatalf("expected relevance error, got %v", err)
	}
}

func TestValidateRejectsZeroSuccessRate(t *testing.T) {
	cfg := infraconfig.DefaultConfig()
	cfg.Cache.MinSuccessRate = 0
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "cache.min_success_rate") {
		t.Fatalf("expected min_success_rate error, got %v", err)
	}
}
