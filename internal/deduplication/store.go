package deduplication

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"alertrelay/internal/logger"
	"alertrelay/pkg/errors"
	"alertrelay/pkg/metrics"
	"alertrelay/pkg/tracing"
)

// Store is the durable memory of identity keys already handled, bucketed by local day.
type Store struct {
	repo   Repository
	loc    *time.Location
	logger logger.Logger
	mu     sync.Mutex
}

func NewStore(repo Repository, loc *time.Location, log logger.Logger) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{repo: repo, loc: loc, logger: log}
}

// BucketFor returns the bucket of the local date of t.
func (s *Store) BucketFor(t time.Time) BucketKey {
	return BucketFor(t, s.loc)
}

// WindowBuckets lists the buckets a scan starting at since must consult.
func (s *Store) WindowBuckets(since, now time.Time, paddingDays int) []BucketKey {
	return WindowBuckets(since, now, paddingDays, s.loc)
}

// LookupWindow returns the union of the given buckets. Unreadable buckets count as empty:
// the failure is logged and counted, and the scan goes on.
func (s *Store) LookupWindow(ctx context.Context, days []BucketKey) map[string]struct{} {
	ctx, span := tracing.GetTracer("dedup-store").Start(ctx, "deduplication.lookup_window")
	defer span.End()

	seen := make(map[string]struct{})
	for _, day := range days {
		keys, err := s.repo.Members(ctx, day)
		if err != nil {
			err = errors.Wrap(err, errors.ErrCacheRead.WithDetail("bucket", string(day)))
			metrics.IncFallback("deduplication", "empty_on_error", errors.ErrCacheRead.Code)
			s.logger.WarnwCtx(ctx, "Dedup bucket unreadable, treating as empty",
				"bucket", day,
				"error", err,
			)
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}

	span.SetAttributes(
		attribute.Int("dedup.buckets", len(days)),
		attribute.Int("dedup.keys", len(seen)),
	)
	metrics.SetDedupWindowSize(len(seen))
	return seen
}

// Commit records key in the bucket. Committing a key twice leaves one entry.
func (s *Store) Commit(ctx context.Context, day BucketKey, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Add(ctx, day, key); err != nil {
		metrics.IncDedupCommit("error")
		return errors.Wrap(err, errors.ErrCacheWrite.WithDetail("bucket", string(day)))
	}
	metrics.IncDedupCommit("ok")
	return nil
}

// Members returns one bucket as stored. Unlike LookupWindow, read failures are returned.
func (s *Store) Members(ctx context.Context, day BucketKey) ([]string, error) {
	keys, err := s.repo.Members(ctx, day)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCacheRead.WithDetail("bucket", string(day)))
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *Store) Buckets(ctx context.Context) ([]BucketKey, error) {
	days, err := s.repo.Buckets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCacheRead)
	}
	return days, nil
}
