package session

import "testing"

// TestPurpose: Validates that the current-principal holder starts empty, exposes the principal after login sets it, and is empty again after logout clears it.
// Scope: Unit Test
// Security: Session state isolation
// Expected: Current reflects the last Set/Clear call.
// Test Case ID: SES-01
func TestSession_Holder(t *testing.T) {
	h := NewHolder()

	if _, ok := h.Current(); ok {
		t.Fatal("expected empty holder")
	}

	h.Set(Principal{ID: "u-1", Username: "alice", DisplayName: "Alice", RoleName: "vedouci"})
	p, ok := h.Current()
	if !ok {
		t.Fatal("expected principal after Set")
	}
	if p.Username != "alice" || p.RoleName != "vedouci" {
		t.Errorf("unexpected principal %+v", p)
	}

	// Mutating the returned copy must not affect the holder.
	p.Username = "mallory"
	if cur, _ := h.Current(); cur.Username != "alice" {
		t.Errorf("holder leaked internal state: %q", cur.Username)
	}

	h.Clear()
	if _, ok := h.Current(); ok {
		t.Error("expected empty holder after Clear")
	}
}
