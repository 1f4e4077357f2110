// Provider construction. API keys are resolved by the config package and
// passed in explicitly:
//
//	provider, err := llm.ProviderOpenAI.Builder().
//	    MaxTokens(4096).
//	    Temperature(0.2).
//	    APIKey(key)

package llm

import (
	"fmt"
	"strings"
)

// ProviderType represents supported providers.
type ProviderType int

const (
	// ProviderGemini is the Google Gemini provider. It is the default for
	// unprefixed model references.
	ProviderGemini ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderGemini:
		return "gemini"
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "gemini", "google":
		return ProviderGemini, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// ParseModelRef splits a pipeline model reference into its provider and
// bare model name. "openai:gpt-4o" selects OpenAI; a reference without a
// known prefix is a Gemini model.
func ParseModelRef(ref string) (ProviderType, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, "", fmt.Errorf("empty model reference")
	}
	prefix, model, found := strings.Cut(ref, ":")
	if !found {
		return ProviderGemini, ref, nil
	}
	provider, err := ParseProviderType(prefix)
	if err != nil {
		return 0, "", fmt.Errorf("model %q: %w", ref, err)
	}
	if model == "" {
		return 0, "", fmt.Errorf("model %q: missing model name", ref)
	}
	return provider, model, nil
}

// Builder starts configuring this provider.
func (p ProviderType) Builder() *ProviderBuilder {
	return NewProviderBuilder(p)
}

// ProviderBuilder is a builder for configuring providers.
type ProviderBuilder struct {
	providerType ProviderType
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets the default temperature; requests may override it.
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	temperature := float32(0.4) // default
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderGemini:
		return NewGeminiProvider(apiKey, maxTokens, temperature), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, maxTokens, temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, maxTokens, temperature), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(apiKey, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}

// Gemini model identifiers used by the default pipeline.
const (
	// ModelGeminiPro25 is Gemini 2.5 Pro: strongest chart reading, slowest.
	ModelGeminiPro25 = "gemini-2.5-pro"
	// ModelGeminiFlash25 is Gemini 2.5 Flash: primary engine.
	ModelGeminiFlash25 = "gemini-2.5-flash"
	// ModelGeminiFlashLite25 is Gemini 2.5 Flash-Lite: cheap backup.
	ModelGeminiFlashLite25 = "gemini-2.5-flash-lite"
	// ModelGeminiFlash2 is Gemini 2.0 Flash: last-resort backup.
	ModelGeminiFlash2 = "gemini-2.0-flash"
)
