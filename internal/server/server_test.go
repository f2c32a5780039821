package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tdamd/pairctl/internal/credstore"
	"github.com/tdamd/pairctl/internal/pairing"
	"github.com/tdamd/pairctl/internal/session"
	"github.com/tdamd/pairctl/internal/testutil/testlog"
	"github.com/tdamd/pairctl/internal/transport"
)

func newTestServer(t *testing.T, handshakeDelay time.Duration) *Server {
	t.Helper()
	store, err := credstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	locks := pairing.NewLock()
	registry := session.NewRegistry()
	mgr := session.NewManager(session.Deps{
		Store:    store,
		Locks:    locks,
		Registry: registry,
		Dialer:   &transport.DevDialer{HandshakeDelay: handshakeDelay},
		Config: session.Config{
			HandshakeTimeout: 5 * time.Second,
			MaxAttempts:      2,
			ArtifactWait:     2 * time.Second,
			Backoff: session.BackoffConfig{
				InitialDelay: time.Millisecond,
				Multiplier:   2.0,
				MaxDelay:     5 * time.Millisecond,
			},
		},
	})
	t.Cleanup(mgr.Close)
	return New("pairctl-test", ":0", mgr, registry, locks)
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return body
}

func waitSessionState(t *testing.T, s *Server, id string, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h, ok := s.registry.Get(id); ok && h.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %s", id, want)
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, 10*time.Millisecond)
	rr := doRequest(s, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" || body["service"] != "pairctl-test" {
		t.Fatalf("body %v", body)
	}
}

func TestPairRequiresNumber(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, 10*time.Millisecond)
	rr := doRequest(s, http.MethodGet, "/pair")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(s, http.MethodGet, "/pair?number=no-digits")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPairWithCodeReturnsCode(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, 10*time.Millisecond)
	rr := doRequest(s, http.MethodGet, "/pair?number=%2B1%20555%20123%204567")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	code, _ := body["code"].(string)
	if !strings.HasPrefix(code, "DEV-") {
		t.Fatalf("code %q", code)
	}
	if body["sessionId"] == "" {
		t.Fatalf("missing sessionId in %v", body)
	}
}

func TestPairConflictWhileInFlight(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, time.Second)
	rr := doRequest(s, http.MethodGet, "/pair?number=15551234567")
	if rr.Code != http.StatusOK {
		t.Fatalf("first pair status %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(s, http.MethodGet, "/pair?number=15551234567")
	if rr.Code != http.StatusConflict {
		t.Fatalf("second pair status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestQrReturnsDataURI(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, time.Second)
	rr := doRequest(s, http.MethodGet, "/qr")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	qr, _ := body["qrCode"].(string)
	if !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Fatalf("qrCode %q", qr)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, 10*time.Millisecond)

	rr := doRequest(s, http.MethodGet, "/qr")
	if rr.Code != http.StatusOK {
		t.Fatalf("qr status %d", rr.Code)
	}
	id, _ := decodeBody(t, rr)["sessionId"].(string)
	waitSessionState(t, s, id, session.StateOpen)

	rr = doRequest(s, http.MethodGet, "/sessions")
	body := decodeBody(t, rr)
	if body["count"].(float64) != 1 {
		t.Fatalf("sessions body %v", body)
	}

	rr = doRequest(s, http.MethodGet, "/sessions/"+id)
	if rr.Code != http.StatusOK {
		t.Fatalf("get session status %d", rr.Code)
	}
	if decodeBody(t, rr)["state"] != string(session.StateOpen) {
		t.Fatalf("snapshot %s", rr.Body.String())
	}

	rr = doRequest(s, http.MethodDelete, "/sessions/"+id+"?logout=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(s, http.MethodDelete, "/sessions/"+id)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status %d", rr.Code)
	}
	rr = doRequest(s, http.MethodGet, "/sessions/"+id)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status %d", rr.Code)
	}
}

func TestSessionEventsStreamsSnapshot(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, 10*time.Millisecond)

	rr := doRequest(s, http.MethodGet, "/qr")
	id, _ := decodeBody(t, rr)["sessionId"].(string)
	waitSessionState(t, s, id, session.StateOpen)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/events", nil).WithContext(ctx)
	stream := httptest.NewRecorder()
	s.Engine().ServeHTTP(stream, req)

	if stream.Code != http.StatusOK {
		t.Fatalf("events status %d", stream.Code)
	}
	if got := stream.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("content type %q", got)
	}
	if !strings.Contains(stream.Body.String(), "event:snapshot") {
		t.Fatalf("stream body %q", stream.Body.String())
	}

	rr = doRequest(s, http.MethodGet, "/sessions/unknown/events")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown session events status %d", rr.Code)
	}
}
