package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tdamd/pairctl/internal/session"
)

func TestLoadTuningOverlayPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.toml")
	content := `
max_attempts = 9
backoff_initial_ms = 100
backoff_jitter = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}

	base := session.DefaultConfig()
	cfg, err := loadTuningOverlay(path, base)
	if err != nil {
		t.Fatalf("load overlay: %v", err)
	}

	if cfg.MaxAttempts != 9 {
		t.Fatalf("max attempts: %d", cfg.MaxAttempts)
	}
	if cfg.Backoff.InitialDelay != 100*time.Millisecond {
		t.Fatalf("initial delay: %v", cfg.Backoff.InitialDelay)
	}
	if cfg.Backoff.Jitter {
		t.Fatalf("jitter override not applied")
	}
	// Undefined keys keep their base values.
	if cfg.HandshakeTimeout != base.HandshakeTimeout {
		t.Fatalf("handshake timeout changed: %v", cfg.HandshakeTimeout)
	}
	if cfg.Backoff.MaxDelay != base.Backoff.MaxDelay {
		t.Fatalf("max delay changed: %v", cfg.Backoff.MaxDelay)
	}
}

func TestLoadTuningOverlayMissingFile(t *testing.T) {
	if _, err := loadTuningOverlay(filepath.Join(t.TempDir(), "absent.toml"), session.DefaultConfig()); err == nil {
		t.Fatalf("expected error for missing overlay")
	}
}
