// Package store persists execution records. Two interchangeable backends
// exist: a SQL-backed one and an in-process map. The backend is chosen once
// at construction (see Open); a record created in one backend is read and
// updated through that same backend for its whole life.
package store

import (
	"context"
	"errors"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
)

// ErrNotFound is returned by Get and Update for unknown execution ids.
var ErrNotFound = errors.New("execution not found")

// ExecutionStore is keyed storage for execution metadata.
type ExecutionStore interface {
	Create(ctx context.Context, rec *model.ExecutionRecord) error
	Update(ctx context.Context, executionID string, patch model.ExecutionPatch) error
	Get(ctx context.Context, executionID string) (*model.ExecutionRecord, error)
}
