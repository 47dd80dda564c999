// Package blacklist records access tokens revoked before their expiry.
// Entries evict themselves once the token would have expired anyway.
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Store interface {
	// Add is a no-op for tokens already present or a non-positive ttl.
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
	Backend() string
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var ErrUnknownBackend = errors.New("unknown blacklist backend")

// New selects a backend by name. client is only used by the redis backend.
func New(backend string, client redis.UniversalClient) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		if client == nil {
			return nil, errors.New("redis blacklist needs a client")
		}
		return NewRedis(client), nil
	}
	return nil, errors.Wrap(ErrUnknownBackend, backend)
}
