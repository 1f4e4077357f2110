// Package dsa provides the prefix index used to resolve abbreviated
// history IDs. Uses go-radix for a compressed prefix tree (radix tree).
package dsa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/armon/go-radix"
)

var (
	// ErrNoMatch is returned when no key has the requested prefix.
	ErrNoMatch = errors.New("no match")
	// ErrAmbiguous is returned when more than one key has the prefix.
	ErrAmbiguous = errors.New("ambiguous prefix")
)

// Trie wraps go-radix for a compressed prefix tree. UUID keys share few
// leading characters, so most lookups touch a handful of nodes.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert adds or replaces a key.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Len returns the number of keys.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}

// StartsWith returns up to limit keys that start with prefix, in key
// order. A non-positive limit returns every match.
func (t *Trie[V]) StartsWith(prefix string, limit int) []string {
	var results []string
	t.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		results = append(results, k)
		return limit > 0 && len(results) >= limit
	})
	return results
}

// Resolve returns the single key that equals or starts with prefix.
// An exact match wins even when longer keys share it as a prefix.
func (t *Trie[V]) Resolve(prefix string) (string, V, error) {
	var zero V
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", zero, fmt.Errorf("empty prefix: %w", ErrNoMatch)
	}

	if val, ok := t.tree.Get(prefix); ok {
		return prefix, val.(V), nil
	}

	matches := t.StartsWith(prefix, 2)
	switch len(matches) {
	case 0:
		return "", zero, fmt.Errorf("%q: %w", prefix, ErrNoMatch)
	case 1:
		val, _ := t.tree.Get(matches[0])
		return matches[0], val.(V), nil
	default:
		return "", zero, fmt.Errorf("%q matches %s and others: %w", prefix, matches[0], ErrAmbiguous)
	}
}
