package dsa

import (
	"errors"
	"testing"
)

func TestTrieResolve(t *testing.T) {
	trie := NewTrie[int]()
	trie.Insert("3f2a9c10-aaaa", 1)
	trie.Insert("3f2b0000-bbbb", 2)
	trie.Insert("9e00ffff-cccc", 3)

	if trie.Len() != 3 {
		t.Fatalf("expected 3 keys, got %d", trie.Len())
	}

	key, val, err := trie.Resolve("3f2a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "3f2a9c10-aaaa" || val != 1 {
		t.Errorf("unexpected resolution: %s=%d", key, val)
	}

	if _, _, err := trie.Resolve("3f2"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
	if _, _, err := trie.Resolve("zz"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
	if _, _, err := trie.Resolve("  "); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch for blank prefix, got %v", err)
	}
}

func TestTrieExactMatchWins(t *testing.T) {
	trie := NewTrie[string]()
	trie.Insert("abc", "short")
	trie.Insert("abcdef", "long")

	key, val, err := trie.Resolve("abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "abc" || val != "short" {
		t.Errorf("expected exact match, got %s=%s", key, val)
	}
}

func TestTrieStartsWith(t *testing.T) {
	trie := NewTrie[struct{}]()
	for _, k := range []string{"a1", "a2", "a3", "b1"} {
		trie.Insert(k, struct{}{})
	}

	if got := trie.StartsWith("a", 0); len(got) != 3 {
		t.Errorf("expected 3 matches, got %v", got)
	}
	if got := trie.StartsWith("a", 2); len(got) != 2 || got[0] != "a1" {
		t.Errorf("expected first 2 matches in order, got %v", got)
	}
	if got := trie.StartsWith("c", 0); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}
