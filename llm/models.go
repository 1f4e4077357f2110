// Package llm provides shared data models for generative endpoints.
package llm

import (
	"encoding/json"
	"fmt"
)

// Image is an inline image sent alongside a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is one call to a generative endpoint.
//
// Model is a model reference as configured in the pipeline; providers see
// only the bare model name (see ParseModelRef).
type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Image             *Image

	// EnableSearch asks the provider to ground the answer with web search
	// and return the sources it used. Providers without a search tool
	// ignore it.
	EnableSearch bool

	// Schema is a JSON Schema object describing the expected output.
	// When set, providers request structured JSON output.
	Schema map[string]any

	// Temperature overrides the provider default when non-nil.
	Temperature *float32
}

// Response is what an endpoint returned for one Request.
type Response struct {
	Text    string
	Sources []Source
	Usage   *TokenUsage
}

// Source is a grounding citation returned with a search-augmented response.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Float32 returns a pointer to v, for Request.Temperature.
func Float32(v float32) *float32 {
	return &v
}

// schemaJSON renders a request schema for providers that take raw JSON.
func schemaJSON(schema map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response schema: %w", err)
	}
	return raw, nil
}
