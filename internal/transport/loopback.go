package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// LoopbackClient is an in-memory Client driven by whoever holds the pointer.
// Tests script it directly; DevDialer wraps it with a canned handshake.
type LoopbackClient struct {
	mu     sync.Mutex
	events chan Event
	ended  bool

	pairingCode string
	sent        []Message
}

// NewLoopbackClient returns a client whose RequestPairingCode answers with
// the given code. An empty code makes pairing-code requests fail.
func NewLoopbackClient(pairingCode string) *LoopbackClient {
	return &LoopbackClient{
		events:      make(chan Event, 16),
		pairingCode: pairingCode,
	}
}

func (c *LoopbackClient) Events() <-chan Event {
	return c.events
}

func (c *LoopbackClient) RequestPairingCode(ctx context.Context, identity string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return "", ErrClientClosed
	}
	if c.pairingCode == "" {
		return "", ErrPairingUnsupported
	}
	return c.pairingCode, nil
}

func (c *LoopbackClient) SendMessage(ctx context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ErrClientClosed
	}
	c.sent = append(c.sent, Message{From: to, Text: text})
	return nil
}

// Sent returns a copy of all messages sent through this client.
func (c *LoopbackClient) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// Emit delivers one event to the consumer side. Emitting KindClose closes the
// stream; later emits are dropped.
func (c *LoopbackClient) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.events <- ev
	if ev.Kind == KindClose {
		c.ended = true
		close(c.events)
	}
}

func (c *LoopbackClient) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return nil
	}
	c.ended = true
	close(c.events)
	return nil
}

// DevDialer fabricates clients that complete a handshake on their own after a
// short delay. It backs `mode = "dev"` runs so the HTTP surface can be
// exercised without the real network.
type DevDialer struct {
	// HandshakeDelay is the pause between the QR challenge and the open
	// event. Zero means 2s.
	HandshakeDelay time.Duration

	mu   sync.Mutex
	seq  int
	live []*LoopbackClient
}

func (d *DevDialer) Dial(ctx context.Context, credential json.RawMessage) (Client, error) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	client := NewLoopbackClient(fmt.Sprintf("DEV-%04d", seq))
	d.mu.Lock()
	d.live = append(d.live, client)
	d.mu.Unlock()

	delay := d.HandshakeDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	resuming := len(credential) > 0 && string(credential) != "{}"
	go func() {
		if resuming {
			// A persisted credential skips the handshake entirely.
			client.Emit(Event{Kind: KindOpen, SelfID: fmt.Sprintf("dev.%d", seq)})
			return
		}
		client.Emit(Event{Kind: KindQrChallenge, QrPayload: fmt.Sprintf("pairctl-dev-%d", seq)})
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			client.Emit(Event{Kind: KindClose, Cause: CauseTransient, Err: ctx.Err()})
			return
		case <-timer.C:
		}
		client.Emit(Event{
			Kind:            KindCredentialUpdate,
			CredentialDelta: json.RawMessage(fmt.Sprintf(`{"registered":true,"dev_seq":%d}`, seq)),
		})
		client.Emit(Event{Kind: KindOpen, SelfID: fmt.Sprintf("dev.%d", seq)})
	}()

	return client, nil
}
