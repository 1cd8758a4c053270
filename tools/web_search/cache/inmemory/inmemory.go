package inmemory

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/cache"
)

const DefaultMaxEntries = 1024

// Store is a process-local LRU cache holding at most maxEntries results.
// Expired entries are skipped on read and evicted first under pressure.
type Store struct {
	lru gcache.Cache
}

func NewInMemoryCache(maxEntries int) *Store {
	return newStore(maxEntries, gcache.NewRealClock())
}

func newStore(maxEntries int, clock gcache.Clock) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{lru: gcache.New(maxEntries).LRU().Clock(clock).Build()}
}

var _ cache.Cache = (*Store)(nil)

func (store *Store) Get(_ context.Context, key string) (string, bool, error) {
	v, err := store.lru.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (store *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		return store.lru.SetWithExpire(key, value, ttl)
	}
	return store.lru.Set(key, value)
}

// Len reports the number of stored entries, expired ones included.
func (store *Store) Len() int { return store.lru.Len(false) }
