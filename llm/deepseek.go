// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Text-only: image requests fail fast with ErrImageUnsupported
// - json_object response format (no json_schema support)

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekProvider implements the Provider interface for DeepSeek.
type DeepSeekProvider struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
}

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey string, maxTokens uint32, temperature float32) *DeepSeekProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL

	return &DeepSeekProvider{
		client:      openai.NewClientWithConfig(config),
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *DeepSeekProvider) Name() string {
	return "deepseek"
}

// Generate sends one chat completion request.
func (p *DeepSeekProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Image != nil && len(req.Image.Data) > 0 {
		return Response{}, fmt.Errorf("deepseek %s: %w", req.Model, ErrImageUnsupported)
	}

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	chatReq := openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            buildOpenAIMessages(withSchemaInstruction(req)),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         temperature,
	}

	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Response{}, wrapError(p.Name(), err)
	}

	return openAIResponse(p.Name(), resp)
}

// withSchemaInstruction appends the schema to the system instruction for
// providers that cannot enforce it server-side.
func withSchemaInstruction(req Request) Request {
	if req.Schema == nil {
		return req
	}
	raw, err := schemaJSON(req.Schema)
	if err != nil {
		return req
	}
	instruction := "Respond with a single JSON object matching this JSON Schema, and nothing else:\n" + string(raw)
	if req.SystemInstruction != "" {
		instruction = req.SystemInstruction + "\n\n" + instruction
	}
	req.SystemInstruction = instruction
	return req
}

// Verify DeepSeekProvider implements Provider
var _ Provider = (*DeepSeekProvider)(nil)
