// Package session owns the session lifecycle: handshake, credential
// persistence, reconnect policy, and teardown.
//
// Ownership boundary:
// - SessionHandle / SessionRegistry
// - the lifecycle state machine (Manager)
// - reconnect backoff primitives
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tdamd/pairctl/internal/backup"
	"github.com/tdamd/pairctl/internal/credstore"
	"github.com/tdamd/pairctl/internal/logging"
	"github.com/tdamd/pairctl/internal/observability"
	"github.com/tdamd/pairctl/internal/pairing"
	"github.com/tdamd/pairctl/internal/transport"
)

var (
	ErrSessionNotFound  = errors.New("session: not found")
	ErrInvalidMode      = errors.New("session: invalid pairing mode")
	ErrUnauthorized     = errors.New("session: credential rejected by transport")
	ErrCorrupted        = errors.New("session: stored state unusable, re-pair required")
	ErrRetriesExhausted = errors.New("session: reconnect attempts exhausted")
	ErrHandshakeTimeout = errors.New("session: no handshake artifact within window")
	ErrStopped          = errors.New("session: stopped by caller")

	errStreamEnded = errors.New("session: transport event stream ended")
)

// MessageHandler consumes inbound chat messages of open sessions.
type MessageHandler func(ctx context.Context, h *Handle, msg transport.Message)

// Deps are the injected collaborators of a Manager. Locks and Registry are
// process-owned singletons constructed by the caller, never package globals.
type Deps struct {
	Store     credstore.Store
	Uploader  backup.Uploader
	Locks     *pairing.Lock
	Registry  *Registry
	Dialer    transport.Dialer
	OnMessage MessageHandler
	Config    Config
}

// Manager drives every session's state machine. Each session runs as one
// goroutine that processes one transport event to completion, including its
// side effects, before admitting the next.
type Manager struct {
	store     credstore.Store
	uploader  backup.Uploader
	locks     *pairing.Lock
	registry  *Registry
	dialer    transport.Dialer
	onMessage MessageHandler
	cfg       Config
	log       zerolog.Logger
	wg        sync.WaitGroup
}

func NewManager(deps Deps) *Manager {
	uploader := deps.Uploader
	if uploader == nil {
		uploader = backup.Nop{}
	}
	return &Manager{
		store:     deps.Store,
		uploader:  uploader,
		locks:     deps.Locks,
		registry:  deps.Registry,
		dialer:    deps.Dialer,
		onMessage: deps.OnMessage,
		cfg:       deps.Config.WithDefaults(),
		log:       logging.Component("session"),
	}
}

// Config returns the manager's effective lifecycle configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// StartPairing admits one pairing attempt and launches its session loop. The
// returned handle's WaitArtifact delivers the QR or pairing-code artifact.
// Identity is required in code mode and the attempt is rejected when a
// pairing for it is already in flight.
func (m *Manager) StartPairing(ctx context.Context, mode Mode, identity string) (*Handle, error) {
	identity = pairing.Normalize(identity)
	switch mode {
	case ModeQR:
	case ModeCode:
		if identity == "" {
			observability.RecordPairingAttempt(string(mode), "invalid")
			return nil, pairing.ErrIdentityRequired
		}
	default:
		return nil, ErrInvalidMode
	}

	sessionID := uuid.NewString()
	lockHeld := false
	if mode == ModeCode {
		if err := m.locks.TryAcquire(identity, sessionID); err != nil {
			observability.RecordPairingAttempt(string(mode), "conflict")
			return nil, err
		}
		lockHeld = true
	}

	cred, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if lockHeld {
			m.locks.ReleaseOwned(identity, sessionID)
		}
		observability.RecordPairingAttempt(string(mode), "storage_failure")
		return nil, err
	}

	observability.RecordPairingAttempt(string(mode), "accepted")
	h := newHandle(sessionID, identity, mode)
	m.launch(h, cred)
	return h, nil
}

// Resume relaunches every session with a persisted credential. Called once on
// boot; sessions already registered are left alone.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, sessionID := range ids {
		if _, live := m.registry.Get(sessionID); live {
			continue
		}
		cred, err := m.store.Load(ctx, sessionID)
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("resume load failed")
			continue
		}
		if cred.Empty() {
			continue
		}
		h := newHandle(sessionID, "", ModeResume)
		m.launch(h, cred)
		resumed++
	}
	return resumed, nil
}

// Stop terminates a session. With logout the persisted credential is deleted;
// otherwise it is retained so the session can be resumed later.
func (m *Manager) Stop(ctx context.Context, sessionID string, logout bool) error {
	h, ok := m.registry.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	h.requestStop(logout)
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops every live session and waits for their loops to exit.
func (m *Manager) Close() {
	m.registry.ForEach(func(h *Handle) {
		h.requestStop(false)
	})
	m.wg.Wait()
}

func (m *Manager) launch(h *Handle, cred credstore.Credential) {
	// One live client per session id: replace any existing handle first.
	if prev, ok := m.registry.Get(h.sessionID); ok && prev != h {
		prev.requestStop(false)
		<-prev.Done()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	m.registry.Set(h.sessionID, h)
	m.wg.Add(1)
	go m.run(ctx, h, cred)
}

// run is the per-session actor loop: one connection attempt per iteration,
// transient failures re-entering with bounded backoff.
func (m *Manager) run(ctx context.Context, h *Handle, cred credstore.Credential) {
	defer m.wg.Done()
	defer close(h.done)
	defer m.registry.DeleteOwned(h.sessionID, h)

	log := m.log.With().
		Str("session_id", h.sessionID).
		Str("mode", string(h.mode)).
		Logger()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		h.setState(StateConnecting)
		doc, err := cred.Encode()
		if err != nil {
			log.Error().Err(err).Msg("credential encode failed")
			doc = json.RawMessage("{}")
		}

		client, err := m.dialer.Dial(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				m.finishCallerStop(h, log)
				return
			}
			log.Warn().Err(err).Int("attempt", h.Attempt()).Msg("dial failed")
			if !m.retryAfterTransient(ctx, h, rng, log) {
				return
			}
			cred = m.reloadCredential(h, cred, log)
			continue
		}

		h.setClient(client)
		h.setState(StateAwaitingHandshake)
		res := m.consume(ctx, h, client, log)
		_ = client.End()
		h.setClient(nil)
		if res.opened {
			observability.SessionClosed()
		}

		if res.ctxDone || ctx.Err() != nil {
			m.finishCallerStop(h, log)
			return
		}

		switch {
		case res.timeout:
			log.Warn().Msg("handshake window expired")
			if !m.retryAfterTransient(ctx, h, rng, log) {
				return
			}
		case res.cause == transport.CauseUnauthorized:
			log.Warn().Err(res.err).Msg("credential rejected")
			m.finishTerminal(h, CauseUnauthorized, ErrUnauthorized, true, log)
			return
		case res.cause == transport.CauseCorrupted:
			log.Warn().Err(res.err).Msg("stored session state unusable")
			m.finishTerminal(h, CauseCorrupted, ErrCorrupted, true, log)
			return
		default:
			log.Warn().Err(res.err).Int("attempt", h.Attempt()).Msg("connection closed")
			if !m.retryAfterTransient(ctx, h, rng, log) {
				return
			}
		}
		cred = m.reloadCredential(h, cred, log)
	}
}

type attemptResult struct {
	opened  bool
	ctxDone bool
	timeout bool
	cause   transport.CloseCause
	err     error
}

// consume drains one client's event stream until it closes, the handshake
// window expires without an artifact, or the caller cancels.
func (m *Manager) consume(ctx context.Context, h *Handle, client transport.Client, log zerolog.Logger) attemptResult {
	var res attemptResult
	artifactDone := h.mode == ModeResume

	handshake := time.NewTimer(m.cfg.HandshakeTimeout)
	defer handshake.Stop()
	events := client.Events()

	for {
		select {
		case <-ctx.Done():
			res.ctxDone = true
			return res

		case <-handshake.C:
			if artifactDone || res.opened {
				continue
			}
			res.timeout = true
			res.err = ErrHandshakeTimeout
			return res

		case ev, ok := <-events:
			if !ok {
				res.cause = transport.CauseTransient
				res.err = errStreamEnded
				return res
			}
			switch ev.Kind {
			case transport.KindCredentialUpdate:
				// Deltas are merged in arrival order; a failed save is
				// logged, never fatal to the session.
				if err := m.store.Save(ctx, h.sessionID, ev.CredentialDelta); err != nil {
					log.Error().Err(err).Msg("credential save failed")
				}
				h.touch()

			case transport.KindQrChallenge:
				if artifactDone {
					continue
				}
				note, err := m.produceArtifact(ctx, h, client, ev.QrPayload, log)
				if err != nil {
					res.cause = transport.CauseTransient
					res.err = err
					return res
				}
				artifactDone = true
				handshake.Stop()
				h.resolveArtifact(note)
				h.notify(note)

			case transport.KindOpen:
				res.opened = true
				artifactDone = true
				h.setState(StateOpen)
				h.setAttempt(0)
				if h.mode == ModeCode {
					m.locks.ReleaseOwned(h.identity, h.sessionID)
				}
				observability.SessionOpened()
				m.maybeBackup(h, ev.SelfID, log)
				connected := Note{Kind: NoteConnected, Message: "connected"}
				h.resolveArtifact(connected)
				h.notify(connected)
				log.Info().Str("self_id", ev.SelfID).Msg("session open")

			case transport.KindMessage:
				if res.opened && m.onMessage != nil {
					m.onMessage(ctx, h, ev.Message)
				}
				h.touch()

			case transport.KindClose:
				res.cause = ev.Cause
				res.err = ev.Err
				return res
			}
		}
	}
}

// produceArtifact turns the transport's handshake challenge into exactly one
// caller-facing artifact: a QR data URI or a numeric pairing code.
func (m *Manager) produceArtifact(ctx context.Context, h *Handle, client transport.Client, qrPayload string, log zerolog.Logger) (Note, error) {
	if h.mode == ModeCode {
		code, err := client.RequestPairingCode(ctx, h.identity)
		if err != nil {
			log.Warn().Err(err).Msg("pairing code request failed")
			return Note{}, err
		}
		return Note{Kind: NotePairingCode, Artifact: code}, nil
	}
	uri, err := EncodeQRDataURI(qrPayload)
	if err != nil {
		log.Warn().Err(err).Msg("qr encode failed")
		return Note{}, err
	}
	return Note{Kind: NoteQrCode, Artifact: uri}, nil
}

// retryAfterTransient applies the bounded-backoff policy. It returns false
// when the session must terminate (streak exhausted or caller cancelled).
func (m *Manager) retryAfterTransient(ctx context.Context, h *Handle, rng *rand.Rand, log zerolog.Logger) bool {
	attempt := h.Attempt() + 1
	if attempt > m.cfg.MaxAttempts {
		m.finishTerminal(h, CauseTransientExhausted, ErrRetriesExhausted, false, log)
		return false
	}
	h.setAttempt(attempt)
	observability.RecordReconnect()
	h.notify(Note{Kind: NoteDisconnected, Cause: CauseTransientRetrying})

	delay := NextBackoffDelay(m.cfg.Backoff, attempt, rng)
	log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		m.finishCallerStop(h, log)
		return false
	case <-timer.C:
		return true
	}
}

// finishTerminal closes the session with a caller-visible cause. Credential
// deletion applies to authentication-terminal causes only.
func (m *Manager) finishTerminal(h *Handle, cause string, err error, deleteCred bool, log zerolog.Logger) {
	h.setState(StateClosing)
	if deleteCred {
		m.deleteCredential(h, log)
	}
	m.releaseLock(h)
	h.failArtifact(err)
	h.notify(Note{Kind: NoteDisconnected, Cause: cause})
	observability.RecordTerminal(cause)
	h.setState(StateClosed)
	log.Info().Str("cause", cause).Msg("session closed")
}

// finishCallerStop handles explicit disconnect and logout. The credential is
// retained on plain disconnects and deleted only when logout was requested.
func (m *Manager) finishCallerStop(h *Handle, log zerolog.Logger) {
	h.setState(StateClosing)
	if h.logoutRequested() {
		m.deleteCredential(h, log)
	}
	m.releaseLock(h)
	h.failArtifact(ErrStopped)
	h.notify(Note{Kind: NoteDisconnected, Cause: CauseCallerInitiated})
	observability.RecordTerminal(CauseCallerInitiated)
	h.setState(StateClosed)
	log.Info().Bool("logout", h.logoutRequested()).Msg("session stopped")
}

// releaseLock frees the pairing lock if this session still owns it. Safe on
// every exit path; release after a successful open is a no-op.
func (m *Manager) releaseLock(h *Handle) {
	if h.mode == ModeCode {
		m.locks.ReleaseOwned(h.identity, h.sessionID)
	}
}

func (m *Manager) deleteCredential(h *Handle, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Delete(ctx, h.sessionID); err != nil {
		log.Error().Err(err).Msg("credential delete failed")
	}
}

func (m *Manager) reloadCredential(h *Handle, prev credstore.Credential, log zerolog.Logger) credstore.Credential {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cred, err := m.store.Load(ctx, h.sessionID)
	if err != nil {
		log.Warn().Err(err).Msg("credential reload failed, reusing previous")
		return prev
	}
	return cred
}

// maybeBackup fires the off-box credential upload once per handle. The upload
// runs detached from the session loop and its failures are swallowed.
func (m *Manager) maybeBackup(h *Handle, selfID string, log zerolog.Logger) {
	if !h.markBackupDone() {
		return
	}
	name := selfID
	if name == "" {
		name = h.sessionID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cred, err := m.store.Load(ctx, h.sessionID)
		if err != nil || cred.Empty() {
			if err != nil {
				log.Warn().Err(err).Msg("backup skipped, credential load failed")
			}
			return
		}
		doc, err := cred.Encode()
		if err != nil {
			log.Warn().Err(err).Msg("backup skipped, credential encode failed")
			return
		}
		locator, err := m.uploader.Upload(ctx, bytes.NewReader(doc), name+".json")
		if err != nil {
			observability.RecordBackupUpload(false)
			log.Warn().Err(err).Msg("credential backup failed")
			return
		}
		observability.RecordBackupUpload(true)
		log.Info().Str("locator", locator).Msg("credential backup uploaded")
	}()
}
