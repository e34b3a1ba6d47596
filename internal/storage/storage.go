package storage

import (
	"context"
	"io"
)

// Archiver offloads raw audio of completed dispatches to blob storage.
// Archiving is best-effort: a failure never fails the dispatch.
type Archiver interface {
	Archive(ctx context.Context, objectName string, contentType string, r io.Reader) (storedURL string, err error)
}
