package blacklist

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "blacklist:"

// Redis keeps entries under native key TTLs so they survive restarts and
// are shared by every replica.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	// SETNX keeps the first TTL; a second logout of the same token is a no-op.
	if err := r.client.SetNX(ctx, redisKeyPrefix+digest(token), 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "blacklist add")
	}
	return nil
}

func (r *Redis) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+digest(token)).Result()
	if err != nil {
		return false, errors.Wrap(err, "blacklist lookup")
	}
	return n == 1, nil
}

func (r *Redis) Backend() string { return BackendRedis }

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
