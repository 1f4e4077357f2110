// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Inline image parts and system instruction handling
// - Google Search grounding and citation extraction
// - Structured output via ResponseSchema

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	maxTokens   int32
	temperature float32
	initErr     error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey string, maxTokens uint32, temperature float32) *GeminiProvider {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiProvider{
			maxTokens:   int32(maxTokens),
			temperature: temperature,
			initErr:     fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiProvider{
		client:      client,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate sends one generateContent call.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if p.initErr != nil {
		return Response{}, p.initErr
	}
	if p.client == nil {
		return Response{}, fmt.Errorf("gemini client not initialized")
	}

	config := p.buildConfig(req)
	contents := []*genai.Content{genai.NewContentFromParts(buildGeminiParts(req), genai.RoleUser)}

	response, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return Response{}, wrapError(p.Name(), err)
	}

	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return Response{}, fmt.Errorf("gemini blocked prompt: %s", response.PromptFeedback.BlockReason)
	}

	content := response.Text()
	if content == "" {
		return Response{}, fmt.Errorf("empty response from Gemini")
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}

	return Response{Text: content, Sources: groundingSources(response), Usage: usage}, nil
}

func (p *GeminiProvider) buildConfig(req Request) *genai.GenerateContentConfig {
	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: p.maxTokens,
	}

	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	// The API rejects a JSON response MIME type combined with the search
	// tool, so grounded requests rely on the prompt for their format.
	if req.EnableSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = convertToGeminiSchema(req.Schema)
	}

	return config
}

func buildGeminiParts(req Request) []*genai.Part {
	parts := make([]*genai.Part, 0, 2)
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	return parts
}

// groundingSources collects web citations from the first candidate,
// dropping duplicates and chunks without a URI.
func groundingSources(response *genai.GenerateContentResponse) []Source {
	if len(response.Candidates) == 0 || response.Candidates[0].GroundingMetadata == nil {
		return nil
	}

	seen := make(map[string]bool)
	var sources []Source
	for _, chunk := range response.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		sources = append(sources, Source{Title: title, URI: chunk.Web.URI})
	}
	return sources
}

// convertToGeminiSchema recursively converts a JSON Schema object to Gemini format.
// Handles arrays by adding required 'items' field.
func convertToGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	} else {
		schema.Type = genai.TypeObject
	}

	if d, ok := params["description"].(string); ok {
		schema.Description = d
	}
	if n, ok := params["nullable"].(bool); ok && n {
		schema.Nullable = genai.Ptr(true)
	}
	schema.Enum = stringList(params["enum"])
	schema.Required = stringList(params["required"])

	switch schema.Type {
	case genai.TypeArray:
		// Gemini requires 'items' for arrays
		if items, ok := params["items"].(map[string]any); ok {
			schema.Items = convertToGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
		if n, ok := intValue(params["minItems"]); ok {
			schema.MinItems = genai.Ptr(n)
		}
		if n, ok := intValue(params["maxItems"]); ok {
			schema.MaxItems = genai.Ptr(n)
		}
	case genai.TypeObject:
		if props, ok := params["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]*genai.Schema, len(props))
			for name, prop := range props {
				if propMap, ok := prop.(map[string]any); ok {
					schema.Properties[name] = convertToGeminiSchema(propMap)
				}
			}
		}
	}

	return schema
}

// stringList accepts both []string and the []any produced by JSON decoding.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// mapToGeminiType maps JSON schema type to Gemini type.
func mapToGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
