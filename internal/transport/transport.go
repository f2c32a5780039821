// Package transport defines the capability boundary to the remote messaging
// network. The real protocol client (wire format, crypto, media) lives
// outside this repository; pairctl only consumes the surface below.
//
// Ownership boundary:
// - Client/Dialer capability interfaces
// - lifecycle event stream shapes
// - close-cause classification codes
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrClientClosed       = errors.New("transport: client closed")
	ErrPairingUnsupported = errors.New("transport: pairing code not supported")
)

// EventKind tags one lifecycle event on a client's stream.
type EventKind int

const (
	// KindCredentialUpdate carries an incremental credential delta that must
	// be merged into previously persisted state before the next delta.
	KindCredentialUpdate EventKind = iota
	// KindQrChallenge signals the socket is established but unauthenticated;
	// the payload may be rendered as a QR code, or ignored in favor of a
	// numeric pairing code request.
	KindQrChallenge
	// KindOpen signals an authenticated connection.
	KindOpen
	// KindMessage carries one inbound chat message.
	KindMessage
	// KindClose signals the connection ended with a classified cause.
	KindClose
)

func (k EventKind) String() string {
	switch k {
	case KindCredentialUpdate:
		return "credential_update"
	case KindQrChallenge:
		return "qr_challenge"
	case KindOpen:
		return "open"
	case KindMessage:
		return "message"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// CloseCause classifies why a connection ended, as reported by the transport.
type CloseCause int

const (
	// CauseTransient covers network blips and server-side restart signals;
	// callers may retry with the same credential.
	CauseTransient CloseCause = iota
	// CauseUnauthorized means the credential was rejected (HTTP-401
	// equivalent); the persisted credential is dead.
	CauseUnauthorized
	// CauseCorrupted means the stored session state is unusable (the
	// transport's stream-error restart code); re-pairing from scratch is
	// required.
	CauseCorrupted
)

func (c CloseCause) String() string {
	switch c {
	case CauseUnauthorized:
		return "unauthorized"
	case CauseCorrupted:
		return "corrupted"
	default:
		return "transient"
	}
}

// Message is one inbound chat message, reduced to what command dispatch needs.
type Message struct {
	From string
	Text string
}

// Event is the tagged union delivered on a client's event stream. Exactly the
// fields for its Kind are set.
type Event struct {
	Kind EventKind

	// KindCredentialUpdate
	CredentialDelta json.RawMessage

	// KindQrChallenge
	QrPayload string

	// KindOpen: the authenticated self identity (used to name backups).
	SelfID string

	// KindMessage
	Message Message

	// KindClose
	Cause CloseCause
	Err   error
}

// Client is one live connection to the messaging network.
//
// Events returns the client's lifecycle stream. The channel is closed after a
// KindClose event has been delivered; a client emits at most one KindClose.
type Client interface {
	Events() <-chan Event
	RequestPairingCode(ctx context.Context, identity string) (string, error)
	SendMessage(ctx context.Context, to, text string) error
	End() error
}

// Dialer constructs clients. The credential is the opaque blob previously
// persisted for the session, or empty for a fresh pairing.
type Dialer interface {
	Dial(ctx context.Context, credential json.RawMessage) (Client, error)
}
