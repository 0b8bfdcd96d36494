package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefRegistry reserves pix references in Redis so uniqueness holds across
// process restarts and replicas, not just within one process.
type RefRegistry struct {
	redisClient *redis.Client
}

func NewRefRegistry(rdb *redis.Client) *RefRegistry {
	return &RefRegistry{redisClient: rdb}
}

func (r *RefRegistry) Reserve(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	return r.redisClient.SetNX(ctx, "pixref:"+reference, 1, ttl).Result()
}
