// Package slab wraps the slab storage engine (internal/slabengine)
// behind the narrow {GET, SET(ttl), REPLACE, DELETE} contract the
// cache server RPC handlers speak, fixing the ttl=0 ambiguity the
// original backend left to the adapter (spec.md §9 Open Question:
// "this spec mandates 'never expire' consistently").
//
// Grounded on _examples/IvanBrykalov-shardcache/cache/api.go's
// Cache[K,V] interface and cache/options.go's Options pattern; values
// are stored as opaque byte slices since the wire contract (spec.md
// §6) carries values as bytes across the RPC boundary.
package slab

import (
	"context"
	"time"

	"github.com/avkuznetsov/freshcache/internal/slabengine"
)

// Slab is the storage contract the cache server drives directly.
// ttl is expressed in seconds; ttl <= 0 means "never expire".
type Slab interface {
	// Get returns the stored value for key and whether it was present
	// and unexpired.
	Get(key string) ([]byte, bool)

	// Set stores value under key with the given ttl in seconds.
	Set(key string, value []byte, ttlSeconds int64)

	// ReplaceIfPresent overwrites an existing key's value in place,
	// preserving its TTL. Returns false if key is absent.
	ReplaceIfPresent(key string, value []byte) bool

	// Delete removes key. Returns true if it was present.
	Delete(key string) bool

	// Len reports the number of resident entries.
	Len() int

	// Close releases background resources.
	Close() error

	// GetOrLoad returns key's value, invoking the loader configured at
	// construction time on miss and caching the result under
	// DefaultTTL. Concurrent loads for the same key are coalesced.
	// Returns slabengine.ErrNoLoader if no loader was configured. The
	// cache server's server-driven fill does not go through this method;
	// cacheserver.Handler runs its own Loader.
	GetOrLoad(ctx context.Context, key string) ([]byte, error)
}

type slab struct {
	cache slabengine.Cache[string, []byte]
}

// New wraps an already-constructed slab engine cache. Callers build
// the underlying cache via slabengine.New (LRU eviction) with whatever
// shard count and metrics adapter the deployment calls for
// (spec.md §4.4 "cache server"), then hand it to New.
func New(cache slabengine.Cache[string, []byte]) Slab {
	return &slab{cache: cache}
}

func (s *slab) Get(key string) ([]byte, bool) {
	return s.cache.Get(key)
}

// Set translates ttlSeconds <= 0 to slabengine's own "disable
// expiration" sentinel, so "never expire" is unambiguous regardless of
// which ttl value upstream callers chose to mean it.
func (s *slab) Set(key string, value []byte, ttlSeconds int64) {
	if ttlSeconds <= 0 {
		s.cache.SetWithTTL(key, value, 0)
		return
	}
	s.cache.SetWithTTL(key, value, time.Duration(ttlSeconds)*time.Second)
}

func (s *slab) ReplaceIfPresent(key string, value []byte) bool {
	return s.cache.ReplaceIfPresent(key, value)
}

func (s *slab) Delete(key string) bool {
	return s.cache.Remove(key)
}

func (s *slab) Len() int {
	return s.cache.Len()
}

func (s *slab) Close() error {
	return s.cache.Close()
}

func (s *slab) GetOrLoad(ctx context.Context, key string) ([]byte, error) {
	return s.cache.GetOrLoad(ctx, key)
}

var _ Slab = (*slab)(nil)
