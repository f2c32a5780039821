// Package credstore persists opaque session credentials. The blob's schema is
// owned by the transport collaborator; this package only merges and stores
// whatever the transport emits.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	ErrInvalidSessionID = errors.New("credstore: invalid session id")
	ErrStorage          = errors.New("credstore: storage failure")
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateSessionID rejects ids that could escape a key namespace or a
// directory root.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" || sessionID == "." || sessionID == ".." || !sessionIDPattern.MatchString(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return nil
}

// Credential is the opaque persisted blob, held as top-level fields so deltas
// can be merged with last-write-per-field semantics.
type Credential map[string]json.RawMessage

// Empty reports whether no credential material exists yet.
func (c Credential) Empty() bool {
	return len(c) == 0
}

// Merge applies one delta emitted by the transport. Top-level fields in the
// delta replace fields of the same name; everything else is retained. Merging
// the same delta twice is a no-op.
func (c Credential) Merge(delta json.RawMessage) error {
	if len(delta) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(delta, &fields); err != nil {
		return fmt.Errorf("credstore: decode delta: %w", err)
	}
	for k, v := range fields {
		c[k] = v
	}
	return nil
}

// Encode renders the credential as a single JSON document.
func (c Credential) Encode() (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(map[string]json.RawMessage(c))
	if err != nil {
		return nil, fmt.Errorf("credstore: encode credential: %w", err)
	}
	return data, nil
}

// Decode parses a stored document into a Credential. Empty input yields an
// empty credential.
func Decode(data []byte) (Credential, error) {
	cred := Credential{}
	if len(data) == 0 {
		return cred, nil
	}
	if err := json.Unmarshal(data, (*map[string]json.RawMessage)(&cred)); err != nil {
		return nil, fmt.Errorf("credstore: decode credential: %w", err)
	}
	return cred, nil
}

// Store persists one credential record per session id.
//
// Load returns an empty credential (nil error) when no record exists; a
// non-nil error always means the backend itself is unavailable, which is
// fatal to the pairing attempt that triggered it. Save merges a delta into
// the stored record. Delete of a missing record is a no-op.
type Store interface {
	Load(ctx context.Context, sessionID string) (Credential, error)
	Save(ctx context.Context, sessionID string, delta json.RawMessage) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

func sortedIDs(ids []string) []string {
	sort.Strings(ids)
	return ids
}
