package tracing

import (
	"context"
	"testing"
)

// TestPurpose: Validates tracer shutdown safety when tracing is disabled or initialization failed.
// Scope: Unit Test
// Security: N/A
// Expected: Shutdown is a no-op on a nil tracer and on a disabled tracer; a disabled tracer still starts spans.
// Test Case ID: TRC-01
func TestTracer_ShutdownSafety(t *testing.T) {
	ctx := context.Background()

	var missing *Tracer
	if err := missing.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown on a nil tracer failed: %v", err)
	}

	disabled, err := New(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, span := disabled.Start(ctx, "test-span")
	span.End()
	if err := disabled.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown on a disabled tracer failed: %v", err)
	}
}
