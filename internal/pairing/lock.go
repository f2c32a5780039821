// Package pairing owns mutual exclusion across concurrent pairing attempts
// for the same external identity.
package pairing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrPairingInProgress = errors.New("pairing: already in progress for identity")
	ErrIdentityRequired  = errors.New("pairing: identity required")
)

// Lock is an identity -> owning-session map. A second acquire for a locked
// identity is rejected, never queued. Construct one per process and inject it;
// it is not a package-level singleton.
type Lock struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewLock() *Lock {
	return &Lock{owners: make(map[string]string)}
}

// Normalize reduces a phone-number-like identity to its digits.
func Normalize(identity string) string {
	var b strings.Builder
	for _, r := range identity {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TryAcquire claims the identity for sessionID. The caller must guarantee a
// matching Release on every exit path of the pairing attempt.
func (l *Lock) TryAcquire(identity, sessionID string) error {
	identity = Normalize(identity)
	if identity == "" {
		return ErrIdentityRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, held := l.owners[identity]; held {
		return fmt.Errorf("%w: held by session %s", ErrPairingInProgress, owner)
	}
	l.owners[identity] = sessionID
	return nil
}

// Release frees the identity regardless of owner. Releasing an unheld
// identity is a no-op.
func (l *Lock) Release(identity string) {
	identity = Normalize(identity)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.owners, identity)
}

// ReleaseOwned frees the identity only when sessionID still owns it, so a
// finished attempt cannot release a lock a newer attempt legitimately holds.
func (l *Lock) ReleaseOwned(identity, sessionID string) {
	identity = Normalize(identity)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[identity] == sessionID {
		delete(l.owners, identity)
	}
}

// Held reports whether the identity is currently locked.
func (l *Lock) Held(identity string) bool {
	identity = Normalize(identity)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.owners[identity]
	return held
}

// Snapshot lists locked identities, sorted, for observability surfaces.
func (l *Lock) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.owners))
	for identity := range l.owners {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}
