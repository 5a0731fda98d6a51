package apiexec

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// CacheEntry is one cached read. Entries are immutable once stored and
// replaced wholesale.
type CacheEntry struct {
	Key        string        `json:"key"`
	Value      []byte        `json:"value"`
	StatusCode int           `json:"statusCode"`
	InsertedAt time.Time     `json:"insertedAt"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the entry is no longer servable at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.InsertedAt.Add(e.TTL))
}

// CacheStore is the storage behind ResponseCache. Stores do not judge
// freshness, the ResponseCache does.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool)
	Set(ctx context.Context, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns how
	// many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Len() int
}

var _ CacheStore = (*MemoryStore)(nil)

// MemoryStore is a sharded in-process map.
type MemoryStore struct {
	shards    []*storeShard
	numShards int
}

type storeShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

func NewMemoryStore() *MemoryStore {
	numShards := 16
	shards := make([]*storeShard, numShards)
	for i := range shards {
		shards[i] = &storeShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &MemoryStore{
		shards:    shards,
		numShards: numShards,
	}
}

func (m *MemoryStore) getShard(key string) *storeShard {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	return m.shards[hash.Sum32()%uint32(m.numShards)]
}

func (m *MemoryStore) Get(_ context.Context, key string) (*CacheEntry, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[key]
	return entry, exists
}

func (m *MemoryStore) Set(_ context.Context, entry *CacheEntry) error {
	shard := m.getShard(entry.Key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[entry.Key] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, shard := range m.shards {
		shard.mu.Lock()
		for key := range shard.store {
			if strings.HasPrefix(key, prefix) {
				delete(shard.store, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}

func (m *MemoryStore) Len() int {
	total := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

var _ CacheStore = (*TieredStore)(nil)

// TieredStore layers a local store over a shared one. Reads try L1 first and
// backfill it from L2; writes and deletes go to both.
type TieredStore struct {
	l1 CacheStore
	l2 CacheStore
}

func NewTieredStore(l1, l2 CacheStore) *TieredStore {
	return &TieredStore{l1: l1, l2: l2}
}

func (t *TieredStore) Get(ctx context.Context, key string) (*CacheEntry, bool) {
	if entry, ok := t.l1.Get(ctx, key); ok {
		return entry, true
	}
	entry, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = t.l1.Set(ctx, entry)
	return entry, true
}

func (t *TieredStore) Set(ctx context.Context, entry *CacheEntry) error {
	if err := t.l1.Set(ctx, entry); err != nil {
		return err
	}
	return t.l2.Set(ctx, entry)
}

func (t *TieredStore) Delete(ctx context.Context, key string) error {
	err1 := t.l1.Delete(ctx, key)
	err2 := t.l2.Delete(ctx, key)
	if err1 != nil {
		return err1
	}
	return err2
}

func (t *TieredStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	n1, err1 := t.l1.DeletePrefix(ctx, prefix)
	n2, err2 := t.l2.DeletePrefix(ctx, prefix)
	if err1 != nil {
		return n1, err1
	}
	if n2 > n1 {
		n1 = n2
	}
	return n1, err2
}

// Len reports the local tier only.
func (t *TieredStore) Len() int {
	return t.l1.Len()
}
