package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const credsFileName = "creds.json"

// FileStore keeps one directory per session under a root, with the merged
// credential document in creds.json. Layout matches what a local resume scan
// expects: root/<sessionID>/creds.json.
type FileStore struct {
	root string
	mu   sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: session root required", ErrStorage)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root: %v", ErrStorage, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *FileStore) Load(ctx context.Context, sessionID string) (Credential, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(sessionID)
}

func (s *FileStore) loadLocked(sessionID string) (Credential, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), credsFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, sessionID, err)
	}
	cred, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *FileStore) Save(ctx context.Context, sessionID string, delta json.RawMessage) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.loadLocked(sessionID)
	if err != nil {
		return err
	}
	if err := cred.Merge(delta); err != nil {
		return err
	}
	doc, err := cred.Encode()
	if err != nil {
		return err
	}

	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create session dir: %v", ErrStorage, err)
	}
	// Write-then-rename so a crash mid-save never leaves a torn document.
	tmp := filepath.Join(dir, credsFileName+".tmp")
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, sessionID, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, credsFileName)); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrStorage, sessionID, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStorage, sessionID, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrStorage, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), credsFileName)); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return sortedIDs(ids), nil
}
