package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/richinex/ghostcandle/llm"
)

// clearEnv unsets every variable Load reads so host settings cannot leak
// into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GHOST_MODELS", "GHOST_BASE_DELAY", "GHOST_DELAY_STEP", "GHOST_COOLDOWN",
		"GHOST_ATTEMPT_TIMEOUT", "GHOST_MAX_RETRIES",
		"GHOST_ANALYSIS_TIMEOUT", "GHOST_ANALYSIS_RETRIES",
		"GHOST_MARKET_TIMEOUT", "GHOST_MARKET_RETRIES",
		"GHOST_SIMULATION_TIMEOUT", "GHOST_SIMULATION_RETRIES",
		"GHOST_BACKTEST_TIMEOUT", "GHOST_BACKTEST_RETRIES",
		"LLM_MAX_TOKENS", "LLM_TEMPERATURE", "GHOST_DB", "GHOST_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghostcandle.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settings.Pipeline.Models) != 3 || settings.Pipeline.Models[0] != llm.ModelGeminiFlash25 {
		t.Errorf("unexpected default pipeline: %v", settings.Pipeline.Models)
	}
	if settings.Operations.Market.Timeout != 15*time.Second || settings.Operations.Market.Retries != 1 {
		t.Errorf("unexpected market defaults: %+v", settings.Operations.Market)
	}
	if settings.Storage.Path == "" {
		t.Error("expected a default storage path")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
pipeline:
  models: [gemini-2.5-pro, "openai:gpt-4o"]
  cooldown: 250ms
operations:
  analysis:
    timeout: 40s
storage:
  path: /tmp/ghost.db
`)

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := settings.Pipeline.Models; len(got) != 2 || got[1] != "openai:gpt-4o" {
		t.Errorf("unexpected models: %v", got)
	}
	if settings.Pipeline.Cooldown != 250*time.Millisecond {
		t.Errorf("expected 250ms cooldown, got %s", settings.Pipeline.Cooldown)
	}
	if settings.Operations.Analysis.Timeout != 40*time.Second {
		t.Errorf("expected 40s analysis timeout, got %s", settings.Operations.Analysis.Timeout)
	}
	// Fields absent from the file keep their defaults.
	if settings.Operations.Analysis.Retries != 2 {
		t.Errorf("expected default retries to survive overlay, got %d", settings.Operations.Analysis.Retries)
	}
	if settings.Pipeline.BaseDelay != time.Second {
		t.Errorf("expected default base delay, got %s", settings.Pipeline.BaseDelay)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "pipeline:\n  models: [gemini-2.5-pro]\n")
	t.Setenv("GHOST_MODELS", " gemini-2.5-flash , claude:claude-sonnet-4-20250514 ,")
	t.Setenv("GHOST_MAX_RETRIES", "4")
	t.Setenv("GHOST_BACKTEST_RETRIES", "0")
	t.Setenv("GHOST_ATTEMPT_TIMEOUT", "9s")
	t.Setenv("GHOST_DB", "/data/ghost.db")

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := settings.Pipeline.Models; len(got) != 2 || got[0] != "gemini-2.5-flash" {
		t.Errorf("unexpected models: %v", got)
	}
	if settings.Operations.Analysis.Retries != 4 {
		t.Errorf("expected global retries to apply, got %d", settings.Operations.Analysis.Retries)
	}
	if settings.Operations.Backtest.Retries != 0 {
		t.Errorf("expected per-operation override, got %d", settings.Operations.Backtest.Retries)
	}
	if settings.Operations.Market.Timeout != 9*time.Second {
		t.Errorf("expected global timeout, got %s", settings.Operations.Market.Timeout)
	}
	if settings.Storage.Path != "/data/ghost.db" {
		t.Errorf("unexpected storage path: %s", settings.Storage.Path)
	}

	providers := settings.Providers()
	if len(providers) != 2 || providers[0] != llm.ProviderGemini || providers[1] != llm.ProviderAnthropic {
		t.Errorf("unexpected providers: %v", providers)
	}
}

func TestLoadInvalidEnvVar(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("GHOST_COOLDOWN", "soon")

	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid GHOST_COOLDOWN")
	}
}

func TestLoadRejectsBadSettings(t *testing.T) {
	clearEnv(t)

	cases := map[string]string{
		"empty models":     "pipeline:\n  models: []\n",
		"unknown provider": "pipeline:\n  models: [\"bard:gemini\"]\n",
		"negative retries": "operations:\n  market:\n    retries: -1\n",
		"zero timeout":     "operations:\n  analysis:\n    timeout: 0s\n",
		"hot temperature":  "llm:\n  temperature: 3.5\n",
		"not yaml":         "pipeline: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestLoadRejectsZeroTimeoutFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GHOST_BACKTEST_TIMEOUT", "0s")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for zero backtest timeout")
	}
	if !strings.Contains(err.Error(), "operations.backtest.timeout must be positive") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestPolicies(t *testing.T) {
	settings := Defaults()
	settings.Pipeline.BaseDelay = 2 * time.Second

	policies := settings.Policies()
	if policies.Simulation.Timeout != 25*time.Second || policies.Simulation.MaxRetries != 2 {
		t.Errorf("unexpected simulation policy: %+v", policies.Simulation)
	}
	if policies.Market.BaseDelay != 2*time.Second {
		t.Errorf("expected shared base delay, got %s", policies.Market.BaseDelay)
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("gpt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForGeminiFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	key, err := APIKeyFor("gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "google-key" {
		t.Errorf("expected fallback key, got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := APIKeyFor("claude"); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	if _, err := APIKeyFor("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
