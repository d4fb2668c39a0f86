package blob

import (
	"context"

	infraRedis "wardroster/internal/infra/blob/redis"
)

// RedisConfig re-exports the infra Redis configuration type.
type RedisConfig = infraRedis.Config

// OpenRedis connects a Redis-backed blob.Store.
func OpenRedis(ctx context.Context, cfg RedisConfig) (Store, error) {
	return infraRedis.Open(ctx, cfg)
}

// OpenRedisFromEnv connects a Redis-backed blob.Store using environment variables.
func OpenRedisFromEnv(ctx context.Context) (Store, error) {
	cfg, err := infraRedis.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return infraRedis.Open(ctx, cfg)
}
