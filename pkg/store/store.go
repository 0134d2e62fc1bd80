package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot exists for the actor
var ErrNotFound = errors.New("snapshot not found")

// Store persists one serialized document per actor. The table and lobby
// actors save after every mutating operation and load on cold start.
type Store interface {
	Save(ctx context.Context, actorID string, snapshot []byte) error
	Load(ctx context.Context, actorID string) ([]byte, error)
	Delete(ctx context.Context, actorID string) error
}
