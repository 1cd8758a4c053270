package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const keyPrefix = "deepsearch:search:"

// Cache stores formatted search results by key. A miss is ("", false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Key derives the cache key for a query on a given backend. Queries differing
// only in case or surrounding whitespace share a key.
func Key(provider, query string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(provider + "\x00" + norm))
	return keyPrefix + hex.EncodeToString(sum[:])
}
