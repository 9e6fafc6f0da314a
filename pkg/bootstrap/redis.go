package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"alertrelay/internal/constants"
)

// InitRedis connects the dedup Redis client. It is a no-op unless dedup.store is redis.
func (b *Base) InitRedis(ctx context.Context) error {
	if b.Config.Dedup.Store != constants.StoreTypeRedis || b.Redis != nil {
		return nil
	}

	rc := b.Config.Dedup.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Password: rc.Password,
		DB:       rc.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	b.Logger.InfowCtx(ctx, "Redis connected successfully", "addr", rdb.Options().Addr)
	b.Redis = rdb
	return nil
}

func (b *Base) ShutdownRedis() []error {
	if b.Redis == nil {
		return nil
	}
	if err := b.Redis.Close(); err != nil {
		return []error{fmt.Errorf("redis close error: %w", err)}
	}
	return nil
}
