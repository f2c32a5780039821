package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tdamd/pairctl/internal/backup"
	"github.com/tdamd/pairctl/internal/commands"
	"github.com/tdamd/pairctl/internal/config"
	"github.com/tdamd/pairctl/internal/credstore"
	"github.com/tdamd/pairctl/internal/logging"
	"github.com/tdamd/pairctl/internal/pairing"
	"github.com/tdamd/pairctl/internal/server"
	"github.com/tdamd/pairctl/internal/session"
	"github.com/tdamd/pairctl/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pairctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "pairctl.toml", "path to the TOML config")
		tuningPath = flag.String("tuning", "", "optional session tuning overlay")
		initConfig = flag.Bool("init", false, "write a starter config and exit")
	)
	flag.Parse()

	if *initConfig {
		if err := config.WriteTemplate(*configPath, false); err != nil {
			return err
		}
		fmt.Println("wrote", *configPath)
		return nil
	}

	logging.ConfigureRuntime()
	log := logging.Component("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	sessionCfg := config.SessionConfig(cfg.Session)
	if *tuningPath != "" {
		sessionCfg, err = loadTuningOverlay(*tuningPath, sessionCfg)
		if err != nil {
			return err
		}
	}

	store, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	uploader, err := buildUploader(cfg.Backup)
	if err != nil {
		return err
	}
	dialer, err := buildDialer(cfg.Mode)
	if err != nil {
		return err
	}

	cmdRegistry := commands.NewRegistry()
	if err := commands.RegisterBuiltins(cmdRegistry, cfg.Bot.Name, cfg.Bot.Prefix); err != nil {
		return err
	}
	dispatcher := commands.NewDispatcher(cfg.Bot.Prefix, cmdRegistry)

	locks := pairing.NewLock()
	registry := session.NewRegistry()
	mgr := session.NewManager(session.Deps{
		Store:     store,
		Uploader:  uploader,
		Locks:     locks,
		Registry:  registry,
		Dialer:    dialer,
		OnMessage: dispatcher.Handler(),
		Config:    sessionCfg,
	})
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resumed, err := mgr.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume persisted sessions: %w", err)
	}
	log.Info().Int("resumed", resumed).Str("mode", cfg.Mode).Msg("starting")

	srv := server.New(cfg.Name, cfg.Addr, mgr, registry, locks)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	mgr.Close()
	return nil
}

func buildStore(cfg config.StoreConfig) (credstore.Store, error) {
	switch cfg.Backend {
	case "file":
		return credstore.NewFileStore(cfg.Root)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return credstore.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildUploader(cfg config.BackupConfig) (backup.Uploader, error) {
	s3cfg := config.S3Config(cfg)
	if !s3cfg.Enabled() {
		return backup.Nop{}, nil
	}
	return backup.NewS3Uploader(s3cfg)
}

// buildDialer picks the transport for the configured mode. The dev transport
// fabricates handshakes locally; production requires a network dialer wired at
// build time.
func buildDialer(mode string) (transport.Dialer, error) {
	switch mode {
	case "dev":
		return &transport.DevDialer{}, nil
	case "prod":
		return nil, errors.New("no production transport dialer is configured in this build, use mode = \"dev\"")
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}
