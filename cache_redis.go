package apiexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:generate mockgen -source=cache_redis.go -destination=internal/mock/redis_client.go -package=mock

// RedisClient is the subset of go-redis the RedisStore needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// DefaultRedisNamespace prefixes every key the store writes.
const DefaultRedisNamespace = "apiexec:"

var _ CacheStore = (*RedisStore)(nil)

// RedisStore shares cached reads between console replicas. Redis expires the
// keys itself using the entry TTL.
type RedisStore struct {
	client       RedisClient
	namespace    string
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       Logger
}

type RedisStoreOption func(*RedisStore)

func WithRedisNamespace(ns string) RedisStoreOption {
	return func(r *RedisStore) {
		r.namespace = ns
	}
}

func WithRedisTimeouts(read, write time.Duration) RedisStoreOption {
	return func(r *RedisStore) {
		r.readTimeout = read
		r.writeTimeout = write
	}
}

func WithRedisLogger(l Logger) RedisStoreOption {
	return func(r *RedisStore) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	r := &RedisStore{
		client:       client,
		namespace:    DefaultRedisNamespace,
		readTimeout:  500 * time.Millisecond,
		writeTimeout: time.Second,
		logger:       nopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient dials rawURL (redis://[:password@]host:port[/db]) and
// checks connectivity.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis cache get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		r.client.Del(ctx, r.namespace+key)
		return nil, false
	}
	return &entry, true
}

func (r *RedisStore) Set(ctx context.Context, entry *CacheEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.namespace+entry.Key, data, entry.TTL).Err(); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	return r.client.Del(ctx, r.namespace+key).Err()
}

func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	keys, err := r.scan(ctx, escapeGlob(r.namespace+prefix)+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("deleting %d cache keys: %w", len(keys), err)
	}
	return int(n), nil
}

// Len counts the keys of the namespace. It scans, so it is not cheap.
func (r *RedisStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), r.readTimeout)
	defer cancel()

	keys, err := r.scan(ctx, escapeGlob(r.namespace)+"*")
	if err != nil {
		return 0
	}
	return len(keys)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var (
		all    []string
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning cache keys: %w", err)
		}
		all = append(all, keys...)
		if next == 0 {
			return all, nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
