package idgen

import "testing"

func TestNew_IsUUID(t *testing.T) {
	id := New()
	if !IsUUID(id) {
		t.Fatalf("expected UUID, got %q", id)
	}
	if New() == id {
		t.Error("expected distinct IDs")
	}
}

func TestIsUUID(t *testing.T) {
	tests := map[string]bool{
		"6f1c1b4e-1f2a-4d6b-9c1e-2a3b4c5d6e7f":          true,
		"6F1C1B4E-1F2A-4D6B-9C1E-2A3B4C5D6E7F":          true,
		"6f1c1b4e1f2a4d6b9c1e2a3b4c5d6e7f":              false,
		"urn:uuid:6f1c1b4e-1f2a-4d6b-9c1e-2a3b4c5d6e7f": false,
		"not-a-uuid": false,
		"":           false,
	}
	for in, want := range tests {
		if got := IsUUID(in); got != want {
			t.Errorf("IsUUID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHex(t *testing.T) {
	if got := Hex(8); len(got) != 16 {
		t.Errorf("expected 16 hex chars, got %q", got)
	}
}
