// Package llm provides generative endpoint abstractions.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion (images, schemas, search tools)
// - Normalising SDK failures into *APIError

package llm

import (
	"context"
)

// Provider is one generative endpoint.
// Implementations receive Requests whose Model field is already the bare
// model name for that provider.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Generate submits a single request and returns the raw response text,
	// plus grounding sources when the provider supports search.
	Generate(ctx context.Context, req Request) (Response, error)
}

// Generator is anything that can serve a Request addressed by model
// reference. *Client is the production implementation.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
