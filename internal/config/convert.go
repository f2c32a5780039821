package config

import (
	"time"

	"github.com/tdamd/pairctl/internal/backup"
	"github.com/tdamd/pairctl/internal/session"
)

// SessionConfig maps the TOML tuning block onto the lifecycle configuration.
// Zero fields fall through to the lifecycle defaults.
func SessionConfig(s SessionSettings) session.Config {
	return session.Config{
		HandshakeTimeout: time.Duration(s.HandshakeTimeoutMs) * time.Millisecond,
		MaxAttempts:      s.MaxAttempts,
		ArtifactWait:     time.Duration(s.ArtifactWaitMs) * time.Millisecond,
		Backoff: session.BackoffConfig{
			InitialDelay: time.Duration(s.BackoffInitialMs) * time.Millisecond,
			Multiplier:   s.BackoffMultiplier,
			MaxDelay:     time.Duration(s.BackoffMaxMs) * time.Millisecond,
			Jitter:       s.BackoffJitter,
		},
	}
}

func S3Config(b BackupConfig) backup.S3Config {
	return backup.S3Config{
		Endpoint:  b.Endpoint,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
		Bucket:    b.Bucket,
		UseSSL:    b.UseSSL,
	}
}
