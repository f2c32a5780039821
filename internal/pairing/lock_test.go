package pairing

import (
	"errors"
	"testing"

	"github.com/tdamd/pairctl/internal/testutil/testlog"
)

func TestTryAcquireRejectsSecondAttempt(t *testing.T) {
	testlog.Start(t)
	l := NewLock()
	if err := l.TryAcquire("15551234567", "sess-a"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	err := l.TryAcquire("+1 (555) 123-4567", "sess-b")
	if !errors.Is(err, ErrPairingInProgress) {
		t.Fatalf("expected ErrPairingInProgress, got %v", err)
	}
	l.Release("15551234567")
	if err := l.TryAcquire("15551234567", "sess-b"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestTryAcquireRequiresIdentity(t *testing.T) {
	testlog.Start(t)
	l := NewLock()
	if err := l.TryAcquire("no-digits", "sess-a"); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
}

func TestReleaseOwnedIgnoresStaleOwner(t *testing.T) {
	testlog.Start(t)
	l := NewLock()
	if err := l.TryAcquire("15551234567", "sess-a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.ReleaseOwned("15551234567", "sess-stale")
	if !l.Held("15551234567") {
		t.Fatalf("stale release freed the lock")
	}
	l.ReleaseOwned("15551234567", "sess-a")
	if l.Held("15551234567") {
		t.Fatalf("owned release did not free the lock")
	}
}

func TestNormalizeStripsFormatting(t *testing.T) {
	testlog.Start(t)
	if got := Normalize("+1 (555) 123-4567"); got != "15551234567" {
		t.Fatalf("normalize got %q", got)
	}
}

func TestSnapshotSorted(t *testing.T) {
	testlog.Start(t)
	l := NewLock()
	_ = l.TryAcquire("222", "b")
	_ = l.TryAcquire("111", "a")
	got := l.Snapshot()
	if len(got) != 2 || got[0] != "111" || got[1] != "222" {
		t.Fatalf("snapshot %v", got)
	}
}
