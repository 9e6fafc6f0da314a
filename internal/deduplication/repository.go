package deduplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Repository persists day buckets of identity keys. Buckets are append-only sets.
type Repository interface {
	// Members returns the keys of one bucket. A bucket that was never written is empty, not an error.
	Members(ctx context.Context, day BucketKey) ([]string, error)
	// Add inserts key into the bucket. Adding an existing key is a no-op.
	Add(ctx context.Context, day BucketKey, key string) error
	// Buckets lists the days that have been written, oldest first.
	Buckets(ctx context.Context) ([]BucketKey, error)
}

// FileRepository keeps one JSON document per day: <dir>/<namespace>YYYYMMDD.json holding a
// sorted array of keys. Every append rewrites the whole file through a temp file and rename.
type FileRepository struct {
	dir       string
	namespace string
	mu        sync.Mutex
}

func NewFileRepository(dir, namespace string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dedup dir %s: %w", dir, err)
	}
	return &FileRepository{dir: dir, namespace: namespace}, nil
}

func (r *FileRepository) path(day BucketKey) string {
	return filepath.Join(r.dir, r.namespace+string(day)+".json")
}

func (r *FileRepository) Members(ctx context.Context, day BucketKey) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(day)
}

func (r *FileRepository) read(day BucketKey) ([]string, error) {
	data, err := os.ReadFile(r.path(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bucket %s: %w", day, err)
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", day, err)
	}
	return keys, nil
}

func (r *FileRepository) Add(ctx context.Context, day BucketKey, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// A corrupt bucket is replaced by one rebuilt from this append.
	keys, err := r.read(day)
	if err != nil && !isDecodeError(err) {
		return err
	}

	set := make(map[string]struct{}, len(keys)+1)
	for _, k := range keys {
		set[k] = struct{}{}
	}
	if _, ok := set[key]; ok {
		return nil
	}
	set[key] = struct{}{}

	merged := make([]string, 0, len(set))
	for k := range set {
		merged = append(merged, k)
	}
	sort.Strings(merged)

	return r.write(day, merged)
}

func (r *FileRepository) write(day BucketKey, keys []string) error {
	tmp, err := os.CreateTemp(r.dir, r.namespace+string(day)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp bucket %s: %w", day, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(keys); err != nil {
		tmp.Close()
		return fmt.Errorf("encode bucket %s: %w", day, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync bucket %s: %w", day, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bucket %s: %w", day, err)
	}
	if err := os.Rename(tmpName, r.path(day)); err != nil {
		return fmt.Errorf("replace bucket %s: %w", day, err)
	}
	return nil
}

func (r *FileRepository) Buckets(ctx context.Context) ([]BucketKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(r.dir, r.namespace+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	days := make([]BucketKey, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), r.namespace), ".json")
		day, err := ParseBucketKey(name)
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// RedisRepository stores each bucket as a Redis set named <prefix>YYYYMMDD.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) Members(ctx context.Context, day BucketKey) ([]string, error) {
	keys, err := r.client.SMembers(ctx, r.prefix+string(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS failed: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisRepository) Add(ctx context.Context, day BucketKey, key string) error {
	if err := r.client.SAdd(ctx, r.prefix+string(day), key).Err(); err != nil {
		return fmt.Errorf("redis SADD failed: %w", err)
	}
	return nil
}

func (r *RedisRepository) Buckets(ctx context.Context) ([]BucketKey, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var days []BucketKey
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		day, err := ParseBucketKey(strings.TrimPrefix(iter.Val(), r.prefix))
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}
