package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Class buckets an endpoint failure by what the pipeline should do next.
type Class int

const (
	// ClassUnknown matches nothing below. The orchestrator still tries the
	// next model, since another model may handle the same input.
	ClassUnknown Class = iota
	// ClassFatal is an authentication or authorization failure. Never
	// retried, never switched.
	ClassFatal
	// ClassRateLimited is quota exhaustion or upstream overload. Triggers
	// a model switch without spending same-model retries.
	ClassRateLimited
	// ClassTransient is a momentary network fault or timeout. Retried on
	// the same model with linear backoff.
	ClassTransient
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

var (
	fatalMarkers = []string{
		"api key not valid",
		"invalid api key",
		"api_key_invalid",
		"permission denied",
		"permission_denied",
		"unauthenticated",
		"unauthorized",
	}
	rateLimitMarkers = []string{
		"quota",
		"resource_exhausted",
		"resource exhausted",
		"too many requests",
		"rate limit",
		"service unavailable",
		"overloaded",
		"unavailable",
	}
	transientMarkers = []string{
		"timed out",
		"timeout",
		"deadline exceeded",
		"fetch failed",
		"connection reset",
		"connection refused",
		"broken pipe",
		"eof",
		"network",
		"internal error",
	}

	// Status codes quoted in a message only count as whole numbers, so
	// "15000" or "1429.5" do not match.
	rateLimitCodes = regexp.MustCompile(`\b(429|503)\b`)
	transientCodes = regexp.MustCompile(`\b(500|502|504)\b`)
)

// Classify buckets a failure from its message and HTTP status (zero when
// unknown). The status wins over the message when both are present.
func Classify(message string, status int) Class {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassFatal
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ClassRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ClassTransient
	}

	msg := strings.ToLower(message)

	// Any other 4xx is a request the server rejected outright. Some
	// endpoints report a bad API key as a plain 400, so auth markers are
	// still honoured.
	if status >= 400 && status < 500 {
		if containsAny(msg, fatalMarkers...) {
			return ClassFatal
		}
		return ClassUnknown
	}

	switch {
	case containsAny(msg, fatalMarkers...):
		return ClassFatal
	case containsAny(msg, rateLimitMarkers...) || rateLimitCodes.MatchString(msg):
		return ClassRateLimited
	case containsAny(msg, transientMarkers...) || transientCodes.MatchString(msg):
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// statusCoder is implemented by endpoint errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// ClassifyError classifies any error. An existing *ClassifiedError keeps its
// class; attempt timeouts are always transient.
func ClassifyError(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}
	if errors.Is(err, ErrAttemptTimeout) {
		return ClassTransient
	}

	status := 0
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}
	return Classify(err.Error(), status)
}

// ClassifiedError is an endpoint failure tagged with its class and the
// model that produced it.
type ClassifiedError struct {
	Class Class
	Model string
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Model, e.Class, e.Err)
}

// Unwrap returns the original error for errors.Is/As compatibility.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// classify wraps err with its class unless it already carries one.
func classify(model string, err error) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	return &ClassifiedError{Class: ClassifyError(err), Model: model, Err: err}
}

// IsFatal reports whether err carries a fatal (auth/permission) classification.
func IsFatal(err error) bool {
	var classified *ClassifiedError
	return errors.As(err, &classified) && classified.Class == ClassFatal
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
