package deduplication

import (
	"context"
	"fmt"

	"alertrelay/internal/config"
	"alertrelay/pkg/circuitbreaker"
)

const breakerName = "dedup-redis"

// CircuitBreakerRepository stops calling a failing backend for a while so a dead Redis
// costs one fast error per call instead of one timeout.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(circuitbreaker.FromSettings(breakerName, cfg)),
	}
}

func (r *CircuitBreakerRepository) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.cb == nil {
		return fn(ctx)
	}
	err := r.cb.Run(ctx, fn)
	if err != nil && r.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for %s: %w", breakerName, err)
	}
	return err
}

func (r *CircuitBreakerRepository) Members(ctx context.Context, day BucketKey) ([]string, error) {
	var keys []string
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		keys, err = r.repo.Members(ctx, day)
		return err
	})
	return keys, err
}

func (r *CircuitBreakerRepository) Add(ctx context.Context, day BucketKey, key string) error {
	return r.run(ctx, func(ctx context.Context) error {
		return r.repo.Add(ctx, day, key)
	})
}

func (r *CircuitBreakerRepository) Buckets(ctx context.Context) ([]BucketKey, error) {
	var days []BucketKey
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		days, err = r.repo.Buckets(ctx)
		return err
	})
	return days, err
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
