package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrImageUnsupported is returned by providers that cannot accept image input.
var ErrImageUnsupported = errors.New("model does not accept image input")

// APIError is a provider failure normalised to a message and an HTTP status.
// StatusCode is zero when the failure never reached the server (DNS,
// connection reset, client-side validation).
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the SDK error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status reported by the provider, or zero.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// wrapError converts an SDK error into an *APIError. Context errors pass
// through untouched so callers can still recognise cancellation.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIError{
		Provider:   provider,
		StatusCode: statusOf(err),
		Message:    err.Error(),
		Err:        err,
	}
}

// statusOf digs the HTTP status out of whichever SDK produced err.
func statusOf(err error) int {
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var geminiPtr *genai.APIError
	if errors.As(err, &geminiPtr) && geminiPtr != nil {
		return geminiPtr.Code
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return openaiReqErr.HTTPStatusCode
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}

	return 0
}
