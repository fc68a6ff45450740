package canonicalize

import "testing"

func TestJCSKeyOrderIsDeterministic(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	b := map[string]any{"c": 3, "a": 2, "b": 1}

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected identical hashes regardless of key order, got %s != %s", ha, hb)
	}
}

func TestHashChangesWithContent(t *testing.T) {
	h1, _ := Hash(map[string]any{"x": 1})
	h2, _ := Hash(map[string]any{"x": 2})
	if h1 == h2 {
		t.Fatalf("expected different hashes for different content")
	}
}
