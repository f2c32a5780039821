// Package backup uploads credential snapshots to off-box object storage.
// Backup is best effort: failures are logged by callers and never gate a
// session's usability.
package backup

import (
	"context"
	"errors"
	"io"
)

var ErrUploadFailed = errors.New("backup: upload failed")

// Uploader stores a named object and returns a retrievable locator.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, name string) (string, error)
}

// Nop is the uploader used when no backup target is configured.
type Nop struct{}

func (Nop) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	return "", nil
}
