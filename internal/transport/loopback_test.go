package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tdamd/pairctl/internal/testutil/testlog"
)

func drain(t *testing.T, events <-chan Event, want int) []Event {
	t.Helper()
	out := make([]Event, 0, want)
	deadline := time.After(2 * time.Second)
	for len(out) < want {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("got %d events, want %d", len(out), want)
		}
	}
	return out
}

func TestLoopbackCloseEndsStream(t *testing.T) {
	testlog.Start(t)
	c := NewLoopbackClient("CODE")
	c.Emit(Event{Kind: KindQrChallenge, QrPayload: "ref"})
	c.Emit(Event{Kind: KindClose, Cause: CauseTransient})
	// Dropped, the stream already ended.
	c.Emit(Event{Kind: KindOpen})

	events := drain(t, c.Events(), 2)
	if events[0].Kind != KindQrChallenge || events[1].Kind != KindClose {
		t.Fatalf("events %v", events)
	}
	if _, ok := <-c.Events(); ok {
		t.Fatalf("stream still open after close event")
	}

	if _, err := c.RequestPairingCode(context.Background(), "1555"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("pairing code after close: %v", err)
	}
	if err := c.SendMessage(context.Background(), "u", "hi"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestLoopbackPairingCode(t *testing.T) {
	testlog.Start(t)
	c := NewLoopbackClient("ABCD-1234")
	code, err := c.RequestPairingCode(context.Background(), "15551234567")
	if err != nil || code != "ABCD-1234" {
		t.Fatalf("code=%q err=%v", code, err)
	}

	unsupported := NewLoopbackClient("")
	if _, err := unsupported.RequestPairingCode(context.Background(), "1555"); !errors.Is(err, ErrPairingUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestDevDialerFreshHandshake(t *testing.T) {
	testlog.Start(t)
	d := &DevDialer{HandshakeDelay: 5 * time.Millisecond}
	client, err := d.Dial(context.Background(), json.RawMessage("{}"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	events := drain(t, client.Events(), 3)
	if events[0].Kind != KindQrChallenge {
		t.Fatalf("first event %v", events[0].Kind)
	}
	if events[1].Kind != KindCredentialUpdate || len(events[1].CredentialDelta) == 0 {
		t.Fatalf("second event %+v", events[1])
	}
	if events[2].Kind != KindOpen || events[2].SelfID == "" {
		t.Fatalf("third event %+v", events[2])
	}
}

func TestDevDialerResumeSkipsHandshake(t *testing.T) {
	testlog.Start(t)
	d := &DevDialer{HandshakeDelay: 5 * time.Millisecond}
	client, err := d.Dial(context.Background(), json.RawMessage(`{"registered":true}`))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	events := drain(t, client.Events(), 1)
	if events[0].Kind != KindOpen {
		t.Fatalf("resume first event %v", events[0].Kind)
	}
}
