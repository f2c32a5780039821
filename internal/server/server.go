// Package server is the HTTP front door: pairing entry points, session
// inspection, the SSE event feed, and the ops surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tdamd/pairctl/internal/logging"
	"github.com/tdamd/pairctl/internal/observability"
	"github.com/tdamd/pairctl/internal/pairing"
	"github.com/tdamd/pairctl/internal/session"
)

type Server struct {
	name     string
	addr     string
	engine   *gin.Engine
	mgr      *session.Manager
	registry *session.Registry
	locks    *pairing.Lock
	log      zerolog.Logger
	http     *http.Server
	started  time.Time
}

func New(name, addr string, mgr *session.Manager, registry *session.Registry, locks *pairing.Lock) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(observability.RequestLogger(logging.Component("http")))
	engine.Use(observability.RequestMetricsMiddleware())

	s := &Server{
		name:     name,
		addr:     addr,
		engine:   engine,
		mgr:      mgr,
		registry: registry,
		locks:    locks,
		log:      logging.Component("server"),
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

// Engine exposes the router for httptest-driven callers.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.addr).Msg("http listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
