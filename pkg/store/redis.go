package store

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "actor:"

// Redis stores actor snapshots in Redis
type Redis struct {
	rdclient *redis.Client
}

// NewRedis returns a Redis-backed snapshot store
func NewRedis(addr, password string, db int) *Redis {
	rdclient := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{rdclient: rdclient}
}

// Save writes the snapshot document for the actor
func (r *Redis) Save(ctx context.Context, actorID string, snapshot []byte) error {
	return r.rdclient.Set(ctx, keyPrefix+actorID, snapshot, 0).Err()
}

// Load reads the snapshot document for the actor
func (r *Redis) Load(ctx context.Context, actorID string) ([]byte, error) {
	val, err := r.rdclient.Get(ctx, keyPrefix+actorID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return val, nil
}

// Delete removes the snapshot document for the actor
func (r *Redis) Delete(ctx context.Context, actorID string) error {
	return r.rdclient.Del(ctx, keyPrefix+actorID).Err()
}

// Ping verifies connectivity, used by the health endpoint
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdclient.Ping(ctx).Err()
}
