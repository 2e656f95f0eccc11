package metrics

import "testing"

// TestPurpose: Validates counter creation against the disabled (noop) meter.
// Scope: Unit Test
// Security: N/A
// Expected: The login counter pair is created without error whether or not OTel export is enabled.
// Test Case ID: MET-01
func TestMeter_LoginCounters(t *testing.T) {
	m := New(Config{Enabled: false}, "authcore-test")

	success, failure, err := m.LoginCounters()
	if err != nil {
		t.Fatalf("LoginCounters failed: %v", err)
	}
	if success == nil || failure == nil {
		t.Error("expected both counters to be created")
	}
}
