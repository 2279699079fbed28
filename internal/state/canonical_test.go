package state

import (
	"encoding/json"
	"testing"
)

func TestMarshalCanonical_SortsKeysAndStripsWhitespace(t *testing.T) {
	encoded, err := MarshalCanonical(map[string]any{
		"zeta":  1.0,
		"alpha": []any{"b", "a"},
		"mid":   map[string]any{"y": true, "x": nil},
	})
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	want := `{"alpha":["b","a"],"mid":{"x":null,"y":true},"zeta":1}`
	if string(encoded) != want {
		t.Fatalf("canonical = %s, want %s", encoded, want)
	}
}

func TestMarshalCanonical_Idempotent(t *testing.T) {
	st := New()
	st.World.Vars["tension"] = 45.5
	st.World.Tags = []string{"storm", "siege"}
	st.Characters["alice"] = &Character{Mood: "angry"}

	first, err := MarshalCanonical(st)
	if err != nil {
		t.Fatalf("first canonicalization: %v", err)
	}

	var decoded any
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("reparse canonical form: %v", err)
	}
	second, err := MarshalCanonical(decoded)
	if err != nil {
		t.Fatalf("second canonicalization: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("canonicalization is not idempotent:\n%s\n%s", first, second)
	}
}

func TestMarshalCanonical_NumbersWithoutTrailingZeros(t *testing.T) {
	encoded, err := MarshalCanonical(map[string]any{"a": 0.5, "b": 45.0, "c": 1.25})
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	want := `{"a":0.5,"b":45,"c":1.25}`
	if string(encoded) != want {
		t.Fatalf("canonical = %s, want %s", encoded, want)
	}
}

func TestHash_StableAndSensitive(t *testing.T) {
	st := New()
	st.World.Vars["tension"] = 45.0

	first, err := st.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := st.Clone().Hash()
	if err != nil {
		t.Fatalf("Hash of clone: %v", err)
	}
	if first != second {
		t.Fatalf("value-equal states hash differently: %s vs %s", first, second)
	}
	if len(first) != 32 {
		t.Fatalf("hash length = %d, want 32 hex chars", len(first))
	}

	st.World.Vars["tension"] = 46.0
	changed, err := st.Hash()
	if err != nil {
		t.Fatalf("Hash after change: %v", err)
	}
	if changed == first {
		t.Fatal("hash did not change with the state")
	}
}
