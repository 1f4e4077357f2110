// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Base64 image content blocks
// - Schema enforced through the system prompt (no server-side JSON mode)

package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:      client,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate sends one Messages API request. EnableSearch is ignored.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (Response, error) {
	req = withSchemaInstruction(req)

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = float64(*req.Temperature)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   p.maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(buildAnthropicBlocks(req)...)},
		Temperature: anthropic.Float(temperature),
	}

	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemInstruction},
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, wrapError(p.Name(), err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}
	if content == "" {
		return Response{}, fmt.Errorf("empty response from Anthropic")
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return Response{Text: content, Usage: usage}, nil
}

func buildAnthropicBlocks(req Request) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if req.Image != nil && len(req.Image.Data) > 0 {
		encoded := base64.StdEncoding.EncodeToString(req.Image.Data)
		blocks = append(blocks, anthropic.NewImageBlockBase64(req.Image.MIMEType, encoded))
	}
	return append(blocks, anthropic.NewTextBlock(req.Prompt))
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
