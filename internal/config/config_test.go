package config

import (
	"testing"
	"time"
)

// TestPurpose: Validates environment loading with defaults.
// Scope: Unit Test
// Security: Configuration handling
// Expected: Unset variables fall back to defaults, set variables override them, and malformed values keep the default.
// Test Case ID: CFG-01
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "test-password")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("ARGON2_MEMORY", "not-a-number")
	t.Setenv("AUDIT_MAX_AGE", "720h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected overridden host, got %q", cfg.Database.Host)
	}
	if cfg.Database.Port != "5432" {
		t.Errorf("expected default port, got %q", cfg.Database.Port)
	}
	if cfg.Security.Argon2Memory != 65536 {
		t.Errorf("expected the default for a malformed ARGON2_MEMORY, got %d", cfg.Security.Argon2Memory)
	}
	if cfg.Retention.AuditMaxAge != 720*time.Hour {
		t.Errorf("expected 720h retention, got %s", cfg.Retention.AuditMaxAge)
	}
}

// TestPurpose: Validates configuration rejection of unusable values.
// Scope: Unit Test
// Security: Misconfiguration defense
// Expected: A missing database password and an unsafely low Argon2 memory are both refused.
// Test Case ID: CFG-02
func TestLoad_Validation(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	if _, err := Load(); err == nil {
		t.Error("expected an error without DB_PASSWORD")
	}

	t.Setenv("DB_PASSWORD", "test-password")
	t.Setenv("ARGON2_MEMORY", "1024")
	if _, err := Load(); err == nil {
		t.Error("expected an error for an unsafe ARGON2_MEMORY")
	}
}
