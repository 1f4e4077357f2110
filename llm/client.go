// Client - routes model references to providers.

package llm

import (
	"context"
	"fmt"
)

// Client dispatches each Request to the provider named by its model
// reference. One Client serves a whole pipeline, which may mix providers.
type Client struct {
	providers map[ProviderType]Provider
}

// NewClient creates a client from a set of providers. A later provider
// with the same name replaces an earlier one.
func NewClient(providers ...Provider) (*Client, error) {
	c := &Client{providers: make(map[ProviderType]Provider, len(providers))}
	for _, p := range providers {
		pt, err := ParseProviderType(p.Name())
		if err != nil {
			return nil, err
		}
		c.providers[pt] = p
	}
	return c, nil
}

// Generate resolves req.Model and forwards the request with the bare model
// name to the matching provider.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	pt, model, err := ParseModelRef(req.Model)
	if err != nil {
		return Response{}, err
	}
	provider, ok := c.providers[pt]
	if !ok {
		return Response{}, fmt.Errorf("no %s provider configured for model %q", pt, req.Model)
	}
	req.Model = model
	return provider.Generate(ctx, req)
}

// Verify Client implements Generator
var _ Generator = (*Client)(nil)
