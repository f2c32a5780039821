package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Name    string          `toml:"name"`
	Addr    string          `toml:"addr"`
	Mode    string          `toml:"mode"`
	Store   StoreConfig     `toml:"store"`
	Backup  BackupConfig    `toml:"backup"`
	Bot     BotConfig       `toml:"bot"`
	Session SessionSettings `toml:"session"`
}

type StoreConfig struct {
	Backend       string `toml:"backend"`
	Root          string `toml:"root"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

type BackupConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

type BotConfig struct {
	Name   string `toml:"name"`
	Prefix string `toml:"prefix"`
}

// SessionSettings is the lifecycle tuning block. Durations are milliseconds.
type SessionSettings struct {
	HandshakeTimeoutMs int     `toml:"handshake_timeout_ms"`
	MaxAttempts        int     `toml:"max_attempts"`
	ArtifactWaitMs     int     `toml:"artifact_wait_ms"`
	BackoffInitialMs   int     `toml:"backoff_initial_ms"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffMaxMs       int     `toml:"backoff_max_ms"`
	BackoffJitter      bool    `toml:"backoff_jitter"`
}

func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "pairctl"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Mode == "" {
		cfg.Mode = "prod"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.Root == "" {
		cfg.Store.Root = "./sessions"
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Backup.Bucket == "" {
		cfg.Backup.Bucket = "pairctl-backups"
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = cfg.Name
	}
	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = "!"
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("config missing addr")
	}
	switch cfg.Mode {
	case "dev", "prod":
	default:
		return fmt.Errorf("mode must be dev or prod, got %q", cfg.Mode)
	}
	switch cfg.Store.Backend {
	case "file":
		if strings.TrimSpace(cfg.Store.Root) == "" {
			return fmt.Errorf("store.root required for file backend")
		}
	case "redis":
		if strings.TrimSpace(cfg.Store.RedisAddr) == "" {
			return fmt.Errorf("store.redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be file or redis, got %q", cfg.Store.Backend)
	}
	if cfg.Backup.Endpoint != "" {
		if cfg.Backup.AccessKey == "" || cfg.Backup.SecretKey == "" {
			return fmt.Errorf("backup credentials required when backup.endpoint is set")
		}
		if strings.TrimSpace(cfg.Backup.Bucket) == "" {
			return fmt.Errorf("backup.bucket required when backup.endpoint is set")
		}
	}
	if cfg.Session.MaxAttempts < 0 {
		return fmt.Errorf("session.max_attempts must not be negative")
	}
	if cfg.Session.BackoffMultiplier < 0 {
		return fmt.Errorf("session.backoff_multiplier must not be negative")
	}
	return nil
}
