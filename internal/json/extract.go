// Package json extracts structured payloads from model output.
//
// Models asked for JSON routinely wrap it in markdown fences or surround it
// with commentary. The helpers here peel that off before decoding and check
// that the fields a caller depends on are actually present.
package json

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// previewLen bounds how much of a bad response is quoted in errors.
const previewLen = 100

// StripFences removes a surrounding markdown code fence, with or without a
// language tag (```json, ```JSON, ``` ...).
func StripFences(response string) string {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the info string on the opening fence line.
	if nl := strings.IndexByte(trimmed, '\n'); nl != -1 {
		if tag := strings.TrimSpace(trimmed[:nl]); !strings.ContainsAny(tag, "{[") {
			trimmed = trimmed[nl+1:]
		}
	} else {
		trimmed = strings.TrimLeft(trimmed, "jsonJSON")
	}

	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// Extract returns the JSON document contained in a response.
// It tries, in order: the whole (fence-stripped) response, the span between
// the first '{' and the last '}', and the span between the first '[' and the
// last ']'.
func Extract(response string) (string, error) {
	response = StripFences(response)

	if json.Valid([]byte(response)) {
		return response, nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(response, pair[0])
		end := strings.LastIndex(response, pair[1])
		if start == -1 || end <= start {
			continue
		}
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview(response))
}

// Decode extracts JSON from a response and unmarshals it into T.
func Decode[T any](response string) (T, error) {
	var result T
	raw, err := Extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// DecodeRequired is Decode plus a presence check on the given gjson paths.
// A field explicitly set to null counts as present; callers that need a
// value must check it themselves.
func DecodeRequired[T any](response string, paths ...string) (T, error) {
	var result T
	raw, err := Extract(response)
	if err != nil {
		return result, err
	}
	if err := RequireFields(raw, paths...); err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// RequireFields reports the first of paths missing from the JSON document.
func RequireFields(raw string, paths ...string) error {
	var missing []string
	for _, p := range paths {
		if !gjson.Get(raw, p).Exists() {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("response missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func preview(s string) string {
	if len(s) > previewLen {
		return s[:previewLen] + "..."
	}
	return s
}
