package deduplication

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"alertrelay/internal/config"
	"alertrelay/internal/constants"
)

// NewRepositoryFromConfig builds the backend selected by cfg.Store for one namespace
// (alerts_cache_ or vehicles_cache_). The Redis client is only required for the redis store.
func NewRepositoryFromConfig(cfg config.DedupConfig, cbCfg config.CircuitBreakerConfig, client *redis.Client, namespace string) (Repository, error) {
	switch cfg.Store {
	case constants.StoreTypeFile, "":
		return NewFileRepository(cfg.Dir, namespace)
	case constants.StoreTypeRedis:
		if client == nil {
			return nil, fmt.Errorf("dedup store %q requires a redis client", cfg.Store)
		}
		return NewCircuitBreakerRepository(NewRedisRepository(client, cfg.KeyPrefix+namespace), cbCfg), nil
	default:
		return nil, fmt.Errorf("unsupported dedup store type: %s", cfg.Store)
	}
}
