package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tdamd/pairctl/internal/session"
)

// tuningFile is the optional per-host overlay. Only keys present in the file
// override the base configuration.
type tuningFile struct {
	HandshakeTimeoutMs int     `toml:"handshake_timeout_ms"`
	MaxAttempts        int     `toml:"max_attempts"`
	ArtifactWaitMs     int     `toml:"artifact_wait_ms"`
	BackoffInitialMs   int     `toml:"backoff_initial_ms"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffMaxMs       int     `toml:"backoff_max_ms"`
	BackoffJitter      bool    `toml:"backoff_jitter"`
}

func loadTuningOverlay(path string, base session.Config) (session.Config, error) {
	var raw tuningFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return session.Config{}, fmt.Errorf("load tuning overlay: %w", err)
	}

	cfg := base
	if meta.IsDefined("handshake_timeout_ms") {
		cfg.HandshakeTimeout = time.Duration(raw.HandshakeTimeoutMs) * time.Millisecond
	}
	if meta.IsDefined("max_attempts") {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("artifact_wait_ms") {
		cfg.ArtifactWait = time.Duration(raw.ArtifactWaitMs) * time.Millisecond
	}
	if meta.IsDefined("backoff_initial_ms") {
		cfg.Backoff.InitialDelay = time.Duration(raw.BackoffInitialMs) * time.Millisecond
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_max_ms") {
		cfg.Backoff.MaxDelay = time.Duration(raw.BackoffMaxMs) * time.Millisecond
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Backoff.Jitter = raw.BackoffJitter
	}
	return cfg, nil
}
