package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tdamd/pairctl/internal/credstore"
	"github.com/tdamd/pairctl/internal/observability"
	"github.com/tdamd/pairctl/internal/pairing"
	"github.com/tdamd/pairctl/internal/session"
)

func (s *Server) registerRoutes() {
	observability.RegisterMetrics()

	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.GET("/pair", s.pairWithCode)
	s.engine.GET("/qr", s.pairWithQR)

	s.engine.GET("/sessions", s.listSessions)
	s.engine.GET("/sessions/:id", s.getSession)
	s.engine.GET("/sessions/:id/events", s.sessionEvents)
	s.engine.DELETE("/sessions/:id", s.stopSession)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  s.name,
		"uptime":   time.Since(s.started).String(),
		"sessions": s.registry.Len(),
	})
}

// pairWithCode starts a pairing-code handshake for ?number= and answers with
// the code once the transport produces it.
func (s *Server) pairWithCode(c *gin.Context) {
	number := pairing.Normalize(c.Query("number"))
	if number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'number' is required"})
		return
	}

	h, err := s.mgr.StartPairing(c.Request.Context(), session.ModeCode, number)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	note, err := s.waitArtifact(c, h)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "sessionId": h.SessionID()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": h.SessionID(),
		"code":      note.Artifact,
	})
}

// pairWithQR starts a QR handshake and answers with a PNG data URI.
func (s *Server) pairWithQR(c *gin.Context) {
	h, err := s.mgr.StartPairing(c.Request.Context(), session.ModeQR, "")
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	note, err := s.waitArtifact(c, h)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "sessionId": h.SessionID()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": h.SessionID(),
		"qrCode":    note.Artifact,
	})
}

func (s *Server) waitArtifact(c *gin.Context, h *session.Handle) (session.Note, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.mgr.Config().ArtifactWait)
	defer cancel()
	return h.WaitArtifact(ctx)
}

func (s *Server) listSessions(c *gin.Context) {
	sessions := make([]session.Snapshot, 0)
	s.registry.ForEach(func(h *session.Handle) {
		sessions = append(sessions, h.Snapshot())
	})
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) getSession(c *gin.Context) {
	h, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Snapshot())
}

// sessionEvents streams the session's notes as server-sent events until the
// caller goes away or the session closes.
func (s *Server) sessionEvents(c *gin.Context) {
	h, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return
	}
	notes, cancel := h.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("snapshot", h.Snapshot())
	c.Writer.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-h.Done():
			c.SSEvent("end", gin.H{"sessionId": h.SessionID()})
			c.Writer.Flush()
			return
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case note, open := <-notes:
			if !open {
				return
			}
			c.SSEvent(string(note.Kind), note)
			c.Writer.Flush()
		}
	}
}

// stopSession disconnects a session; ?logout=1 also discards its credential.
func (s *Server) stopSession(c *gin.Context) {
	id := c.Param("id")
	logout := c.Query("logout") == "1" || c.Query("logout") == "true"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := s.mgr.Stop(ctx, id, logout); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": id,
		"status":    "stopped",
		"logout":    logout,
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, pairing.ErrPairingInProgress):
		return http.StatusConflict
	case errors.Is(err, pairing.ErrIdentityRequired),
		errors.Is(err, session.ErrInvalidMode),
		errors.Is(err, credstore.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, credstore.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrCorrupted):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrHandshakeTimeout),
		errors.Is(err, session.ErrRetriesExhausted),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
