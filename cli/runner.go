// Command execution for CLI commands.
//
// Information Hiding:
// - Provider, pipeline and service wiring hidden
// - History database lifecycle hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/richinex/ghostcandle/config"
	"github.com/richinex/ghostcandle/forecast"
	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"github.com/richinex/ghostcandle/storage"
	"go.uber.org/zap"
)

// App runs CLI commands against one configuration. The forecast service
// and the history database are created on first use, so commands that
// need neither work without API keys.
type App struct {
	settings config.Settings
	logger   *zap.Logger
	out      io.Writer
	errOut   io.Writer

	newGenerator func(config.Settings) (llm.Generator, error)
	openHistory  func(path string) (storage.History, error)

	svc     *forecast.Service
	history storage.History

	// outMu serializes writes from concurrent operations.
	outMu sync.Mutex
}

// Option configures an App.
type Option func(*App)

// WithGenerator replaces the provider-backed endpoint.
func WithGenerator(gen llm.Generator) Option {
	return func(a *App) {
		a.newGenerator = func(config.Settings) (llm.Generator, error) { return gen, nil }
	}
}

// WithHistory replaces the SQLite history database.
func WithHistory(h storage.History) Option {
	return func(a *App) {
		a.openHistory = func(string) (storage.History, error) { return h, nil }
	}
}

// WithOutput sets where results and status updates are written.
func WithOutput(out, errOut io.Writer) Option {
	return func(a *App) {
		a.out = out
		a.errOut = errOut
	}
}

// New creates an App.
func New(settings config.Settings, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		settings:     settings,
		logger:       logger,
		out:          os.Stdout,
		errOut:       os.Stderr,
		newGenerator: buildClient,
		openHistory: func(path string) (storage.History, error) {
			return storage.OpenSqlite(path)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close releases the history database if it was opened.
func (a *App) Close() error {
	if a.history == nil {
		return nil
	}
	err := a.history.Close()
	a.history = nil
	return err
}

// buildClient creates one provider per provider prefix used in the
// pipeline and routes between them.
func buildClient(settings config.Settings) (llm.Generator, error) {
	var providers []llm.Provider
	for _, pt := range settings.Providers() {
		apiKey, err := config.APIKeyFor(pt.String())
		if err != nil {
			return nil, err
		}
		provider, err := pt.Builder().
			MaxTokens(settings.LLM.MaxTokens).
			Temperature(float32(settings.LLM.Temperature)).
			APIKey(apiKey)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return llm.NewClient(providers...)
}

func (a *App) service() (*forecast.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	gen, err := a.newGenerator(a.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to configure model endpoint: %w", err)
	}
	pipe, err := pipeline.New(a.settings.Pipeline.Models,
		pipeline.WithCooldown(a.settings.Pipeline.Cooldown),
		pipeline.WithLogger(a.logger.Named("pipeline")),
	)
	if err != nil {
		return nil, err
	}
	svc, err := forecast.NewService(gen, pipe,
		forecast.WithPolicies(a.settings.Policies()),
		forecast.WithLogger(a.logger.Named("forecast")),
	)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func (a *App) store() (storage.History, error) {
	if a.history != nil {
		return a.history, nil
	}
	h, err := a.openHistory(a.settings.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	a.history = h
	return h, nil
}

// status prints progress updates to the error stream so stdout stays
// valid JSON.
func (a *App) status(msg string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.errOut, "» %s\n", msg)
}

func (a *App) printJSON(v any) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Explain returns a remedy hint for errors whose fix differs by class,
// or "" when there is nothing to add.
func Explain(err error) string {
	switch {
	case err == nil:
		return ""
	case pipeline.IsFatal(err):
		return "The model endpoint rejected the credentials. Check GEMINI_API_KEY (or the key for the configured provider) and try again."
	case errors.Is(err, pipeline.ErrEnginesExhausted):
		return "Every configured model is busy or failing. Wait a minute and retry."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, storage.ErrAmbiguousID):
		return "Several saved simulations share that prefix. Use more characters of the ID (see 'history list')."
	default:
		return ""
	}
}

// readChart loads a chart image from a file, or from stdin when path is
// "-". Files holding a data URL are decoded.
func readChart(path string) (model.Chart, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return model.Chart{}, fmt.Errorf("failed to read chart: %w", err)
	}

	if text := strings.TrimSpace(string(data)); strings.HasPrefix(text, "data:") {
		return model.ParseDataURL(text)
	}
	return model.ParseChart(data)
}
