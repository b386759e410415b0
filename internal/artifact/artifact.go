// Package artifact persists generated artifacts (images, documents) keyed
// by execution. Persistence is best-effort from the orchestrator's point of
// view: a failed save is logged, never fatal to the execution.
package artifact

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store saves and retrieves artifact bytes. Save returns a location string
// (e.g. s3://bucket/key) usable for later retrieval or display.
type Store interface {
	Save(ctx context.Context, executionID, name, contentType string, data []byte) (string, error)
	Get(ctx context.Context, executionID, name string) ([]byte, error)
}
