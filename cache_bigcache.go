package apiexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
)

var _ CacheStore = (*BigCacheStore)(nil)

// BigCacheStore keeps entries in allegro/bigcache, off the GC's radar.
// Entries are stored as JSON.
type BigCacheStore struct {
	cache  *bigcache.BigCache
	logger Logger
}

// BigCacheConfig sizes a BigCacheStore.
type BigCacheConfig struct {
	// LifeWindow should match the cache TTL; bigcache evicts after it.
	LifeWindow time.Duration
	// SizeMB caps the memory used, 0 means unbounded.
	SizeMB int
	// MaxEntrySize is a sizing hint in bytes; larger entries still fit.
	MaxEntrySize int
}

func NewBigCacheStore(ctx context.Context, cfg BigCacheConfig, logger Logger) (*BigCacheStore, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = DefaultCacheTTL
	}
	config := bigcache.DefaultConfig(cfg.LifeWindow)
	// bigcache preallocates entries*size per shard; a console keeps a few
	// hundred reads, not the defaults' hundreds of thousands
	config.Shards = 64
	config.MaxEntriesInWindow = 1024
	config.MaxEntrySize = 4 * 1024
	config.HardMaxCacheSize = cfg.SizeMB
	config.Verbose = false
	if cfg.MaxEntrySize > 0 {
		config.MaxEntrySize = cfg.MaxEntrySize
	}

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating bigcache: %w", err)
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &BigCacheStore{cache: cache, logger: logger}, nil
}

func (b *BigCacheStore) Get(_ context.Context, key string) (*CacheEntry, bool) {
	data, err := b.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			b.logger.Warn("bigcache get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		b.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = b.cache.Delete(key)
		return nil, false
	}
	return &entry, true
}

func (b *BigCacheStore) Set(_ context.Context, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := b.cache.Set(entry.Key, data); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

func (b *BigCacheStore) Delete(_ context.Context, key string) error {
	err := b.cache.Delete(key)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (b *BigCacheStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	// collect first, deleting while iterating skips entries
	var keys []string
	it := b.cache.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.Key(), prefix) {
			keys = append(keys, info.Key())
		}
	}

	removed := 0
	for _, key := range keys {
		if err := b.cache.Delete(key); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (b *BigCacheStore) Len() int {
	return b.cache.Len()
}

func (b *BigCacheStore) Close() error {
	return b.cache.Close()
}
