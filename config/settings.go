// Package config provides application settings loaded once at start.
//
// Settings are created via Load() which handles:
// - Default value application
// - An optional YAML file overlay
// - Environment variable overrides with validation
// - Provider-specific API key lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/ghostcandle/forecast"
	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/pipeline"
	"gopkg.in/yaml.v3"
)

// Settings holds all application configuration.
type Settings struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Operations OperationsConfig `yaml:"operations"`
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PipelineConfig holds the ordered model list and the retry pacing shared
// by every operation.
type PipelineConfig struct {
	Models    []string      `yaml:"models"`
	BaseDelay time.Duration `yaml:"base_delay"`
	DelayStep time.Duration `yaml:"delay_step"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// OperationConfig bounds the attempts of one operation on each model.
type OperationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// OperationsConfig holds per-operation attempt bounds.
type OperationsConfig struct {
	Analysis   OperationConfig `yaml:"analysis"`
	Market     OperationConfig `yaml:"market"`
	Simulation OperationConfig `yaml:"simulation"`
	Backtest   OperationConfig `yaml:"backtest"`
}

// LLMConfig holds provider defaults.
type LLMConfig struct {
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// StorageConfig holds the history database location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Pipeline: PipelineConfig{
			Models: []string{
				llm.ModelGeminiFlash25,
				llm.ModelGeminiFlashLite25,
				llm.ModelGeminiFlash2,
			},
			BaseDelay: time.Second,
			DelayStep: time.Second,
			Cooldown:  time.Second,
		},
		Operations: OperationsConfig{
			Analysis:   OperationConfig{Timeout: 25 * time.Second, Retries: 2},
			Market:     OperationConfig{Timeout: 15 * time.Second, Retries: 1},
			Simulation: OperationConfig{Timeout: 25 * time.Second, Retries: 2},
			Backtest:   OperationConfig{Timeout: 20 * time.Second, Retries: 2},
		},
		LLM: LLMConfig{
			MaxTokens:   8192,
			Temperature: 0.4,
		},
		Storage: StorageConfig{Path: defaultDBPath()},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds settings from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, in that order of precedence.
func Load(path string) (Settings, error) {
	settings := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *Settings) applyEnv() error {
	if models := getEnvList("GHOST_MODELS"); models != nil {
		s.Pipeline.Models = models
	}

	var err error
	if s.Pipeline.BaseDelay, err = getEnvDuration("GHOST_BASE_DELAY", s.Pipeline.BaseDelay); err != nil {
		return err
	}
	if s.Pipeline.DelayStep, err = getEnvDuration("GHOST_DELAY_STEP", s.Pipeline.DelayStep); err != nil {
		return err
	}
	if s.Pipeline.Cooldown, err = getEnvDuration("GHOST_COOLDOWN", s.Pipeline.Cooldown); err != nil {
		return err
	}

	ops := []struct {
		name string
		op   *OperationConfig
	}{
		{"ANALYSIS", &s.Operations.Analysis},
		{"MARKET", &s.Operations.Market},
		{"SIMULATION", &s.Operations.Simulation},
		{"BACKTEST", &s.Operations.Backtest},
	}
	for _, o := range ops {
		// Global values first, then the per-operation override.
		for _, key := range []string{"GHOST_ATTEMPT_TIMEOUT", "GHOST_" + o.name + "_TIMEOUT"} {
			if o.op.Timeout, err = getEnvDuration(key, o.op.Timeout); err != nil {
				return err
			}
		}
		for _, key := range []string{"GHOST_MAX_RETRIES", "GHOST_" + o.name + "_RETRIES"} {
			if o.op.Retries, err = getEnvInt(key, o.op.Retries); err != nil {
				return err
			}
		}
	}

	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}

	if v := os.Getenv("GHOST_DB"); v != "" {
		s.Storage.Path = v
	}
	if v := os.Getenv("GHOST_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
	return nil
}

// Validate checks that settings are usable.
func (s Settings) Validate() error {
	var errs []error
	if len(s.Pipeline.Models) == 0 {
		errs = append(errs, errors.New("pipeline.models must list at least one model"))
	}
	for _, m := range s.Pipeline.Models {
		if _, _, err := llm.ParseModelRef(m); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Pipeline.BaseDelay < 0 || s.Pipeline.DelayStep < 0 || s.Pipeline.Cooldown < 0 {
		errs = append(errs, errors.New("pipeline delays must not be negative"))
	}

	for name, op := range map[string]OperationConfig{
		"analysis":   s.Operations.Analysis,
		"market":     s.Operations.Market,
		"simulation": s.Operations.Simulation,
		"backtest":   s.Operations.Backtest,
	} {
		if op.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("operations.%s.timeout must be positive", name))
		}
		if op.Retries < 0 {
			errs = append(errs, fmt.Errorf("operations.%s.retries must not be negative", name))
		}
	}

	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %v out of range [0, 2]", s.LLM.Temperature))
	}
	if s.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path must be set"))
	}
	return errors.Join(errs...)
}

// Policy converts an operation's bounds into a pipeline policy.
func (s Settings) Policy(op OperationConfig) pipeline.Policy {
	return pipeline.Policy{
		Timeout:    op.Timeout,
		MaxRetries: op.Retries,
		BaseDelay:  s.Pipeline.BaseDelay,
		DelayStep:  s.Pipeline.DelayStep,
	}
}

// Policies returns the per-operation policies for the forecast service.
func (s Settings) Policies() forecast.Policies {
	return forecast.Policies{
		Analysis:   s.Policy(s.Operations.Analysis),
		Market:     s.Policy(s.Operations.Market),
		Simulation: s.Policy(s.Operations.Simulation),
		Backtest:   s.Policy(s.Operations.Backtest),
	}
}

// Providers returns the distinct providers the pipeline models need, in
// first-use order.
func (s Settings) Providers() []llm.ProviderType {
	var out []llm.ProviderType
	seen := make(map[llm.ProviderType]bool)
	for _, m := range s.Pipeline.Models {
		pt, _, err := llm.ParseModelRef(m)
		if err != nil || seen[pt] {
			continue
		}
		seen[pt] = true
		out = append(out, pt)
	}
	return out
}

// APIKeyFor returns the API key for a provider from environment variables.
// Gemini also accepts GOOGLE_API_KEY.
func APIKeyFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	envVars := []string{pt.EnvVar()}
	if pt == llm.ProviderGemini {
		envVars = append(envVars, "GOOGLE_API_KEY")
	}
	for _, key := range envVars {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s environment variable not set", pt.EnvVar())
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ghostcandle.db"
	}
	return filepath.Join(home, ".ghostcandle", "history.db")
}

// Environment variable helpers with proper error handling

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
