package session

import (
	"context"
	"sync"
	"time"

	"github.com/tdamd/pairctl/internal/transport"
)

// Mode selects which handshake artifact an attempt produces.
type Mode string

const (
	ModeQR   Mode = "qr"
	ModeCode Mode = "code"
	// ModeResume restores a persisted session on boot; no artifact is
	// produced and no pairing lock is taken.
	ModeResume Mode = "resume"
)

// State is the lifecycle state of one session.
type State string

const (
	StateIdle              State = "idle"
	StateConnecting        State = "connecting"
	StateAwaitingHandshake State = "awaiting_handshake"
	StateOpen              State = "open"
	StateClosing           State = "closing"
	StateClosed            State = "closed"
)

// Caller-visible disconnect causes; a closed enum.
const (
	CauseUnauthorized       = "unauthorized"
	CauseCorrupted          = "corrupted"
	CauseTransientRetrying  = "transient-retrying"
	CauseTransientExhausted = "transient-exhausted"
	CauseCallerInitiated    = "caller-initiated"
)

// NoteKind tags one entry on a session's caller-facing event stream.
type NoteKind string

const (
	NoteQrCode       NoteKind = "qrCode"
	NotePairingCode  NoteKind = "pairingCode"
	NoteConnected    NoteKind = "connected"
	NoteDisconnected NoteKind = "disconnected"
	NoteError        NoteKind = "error"
)

// Note is one caller-facing session event.
type Note struct {
	Kind      NoteKind  `json:"kind"`
	SessionID string    `json:"sessionId"`
	Artifact  string    `json:"artifact,omitempty"`
	Cause     string    `json:"cause,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Snapshot is an observability view of one handle.
type Snapshot struct {
	SessionID    string    `json:"sessionId"`
	Identity     string    `json:"identity,omitempty"`
	Mode         Mode      `json:"mode"`
	State        State     `json:"state"`
	Attempt      int       `json:"attempt"`
	BackupDone   bool      `json:"backupDone"`
	RegisteredAt time.Time `json:"registeredAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// Handle is the unit of truth for one session: the live transport client plus
// lifecycle metadata. All mutation happens on the session's event loop.
type Handle struct {
	sessionID string
	identity  string
	mode      Mode

	mu           sync.Mutex
	state        State
	attempt      int
	backupDone   bool
	registeredAt time.Time
	lastSeenAt   time.Time
	client       transport.Client
	logout       bool

	cancel context.CancelFunc
	done   chan struct{}

	artifactOnce  sync.Once
	artifactReady chan struct{}
	artifactNote  Note
	artifactErr   error

	subMu  sync.Mutex
	subSeq int
	subs   map[int]chan Note
}

func newHandle(sessionID, identity string, mode Mode) *Handle {
	now := time.Now()
	return &Handle{
		sessionID:     sessionID,
		identity:      identity,
		mode:          mode,
		state:         StateIdle,
		registeredAt:  now,
		lastSeenAt:    now,
		done:          make(chan struct{}),
		artifactReady: make(chan struct{}),
		subs:          make(map[int]chan Note),
	}
}

func (h *Handle) SessionID() string { return h.sessionID }
func (h *Handle) Identity() string  { return h.identity }
func (h *Handle) Mode() Mode        { return h.mode }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
	h.lastSeenAt = time.Now()
}

func (h *Handle) Attempt() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempt
}

func (h *Handle) setAttempt(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempt = n
}

func (h *Handle) touch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSeenAt = time.Now()
}

func (h *Handle) setClient(c transport.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = c
}

func (h *Handle) currentClient() transport.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client
}

// Client returns the live transport client, or nil outside the open window.
func (h *Handle) Client() transport.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateOpen {
		return nil
	}
	return h.client
}

func (h *Handle) markBackupDone() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backupDone {
		return false
	}
	h.backupDone = true
	return true
}

func (h *Handle) requestStop(logout bool) {
	h.mu.Lock()
	if logout {
		h.logout = true
	}
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Handle) logoutRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logout
}

// Done is closed once the session's event loop has fully exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		SessionID:    h.sessionID,
		Identity:     h.identity,
		Mode:         h.mode,
		State:        h.state,
		Attempt:      h.attempt,
		BackupDone:   h.backupDone,
		RegisteredAt: h.registeredAt,
		LastSeenAt:   h.lastSeenAt,
	}
}

// Subscribe attaches a caller to the session's event stream. The returned
// cancel func must be called when the caller goes away; SubscriberCount backs
// idle-session sweeps.
func (h *Handle) Subscribe() (<-chan Note, func()) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subSeq++
	id := h.subSeq
	ch := make(chan Note, 16)
	h.subs[id] = ch
	return ch, func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

func (h *Handle) SubscriberCount() int {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	return len(h.subs)
}

// notify fans a note out to subscribers. Slow subscribers drop notes rather
// than stall the session loop.
func (h *Handle) notify(note Note) {
	note.SessionID = h.sessionID
	if note.At.IsZero() {
		note.At = time.Now()
	}
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- note:
		default:
		}
	}
}

// resolveArtifact records the handshake artifact exactly once.
func (h *Handle) resolveArtifact(note Note) {
	h.artifactOnce.Do(func() {
		note.SessionID = h.sessionID
		if note.At.IsZero() {
			note.At = time.Now()
		}
		h.artifactNote = note
		close(h.artifactReady)
	})
}

// failArtifact terminates an artifact wait that can no longer succeed.
func (h *Handle) failArtifact(err error) {
	h.artifactOnce.Do(func() {
		h.artifactErr = err
		close(h.artifactReady)
	})
}

// WaitArtifact blocks until the attempt produces its QR or pairing-code
// artifact (or reaches open for an already-registered credential), or fails
// terminally.
func (h *Handle) WaitArtifact(ctx context.Context) (Note, error) {
	select {
	case <-ctx.Done():
		return Note{}, ctx.Err()
	case <-h.artifactReady:
		if h.artifactErr != nil {
			return Note{}, h.artifactErr
		}
		return h.artifactNote, nil
	}
}
