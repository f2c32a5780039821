package session

import "time"

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session lifecycle defaults.
type Config struct {
	// HandshakeTimeout bounds how long an attempt may run without producing
	// a QR or pairing-code artifact. Expiry is classified transient.
	HandshakeTimeout time.Duration
	// MaxAttempts caps one continuous streak of transient reconnects.
	MaxAttempts int
	// ArtifactWait bounds how long the front door blocks for the handshake
	// artifact before answering the caller.
	ArtifactWait time.Duration
	Backoff      BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 30 * time.Second,
		MaxAttempts:      5,
		ArtifactWait:     45 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.ArtifactWait <= 0 {
		c.ArtifactWait = def.ArtifactWait
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
