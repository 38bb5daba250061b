package utils

import "testing"

func TestHashString_Deterministic(t *testing.T) {
	a := HashString("renewable energy")
	if a != HashString("renewable energy") {
		t.Error("hash should be deterministic")
	}
	if a == HashString("solar") {
		t.Error("different inputs should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo world", 5); got != "héllo..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
}
