// Package cacheserver implements the cache RPC handler of spec.md
// §4.4: it terminates the seven cache RPCs, proxies them to a local
// slab, and maintains the hit/miss/invalidate/update counters used by
// CacheGetMR and CacheGetFreshnessStats.
//
// Grounded on _examples/IvanBrykalov-shardcache/cache/metrics.go's
// atomic-counter style and cache/cache.go's "one handler method per
// operation, slab access proxied through a single owned backend"
// shape; fill-mode selection follows spec.md §4.3 "Fill races".
package cacheserver

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/avkuznetsov/freshcache/internal/singleflight"
	"github.com/avkuznetsov/freshcache/slab"
	"github.com/avkuznetsov/freshcache/transport"
)

// FillMode selects how a cache miss is resolved. It is fixed at
// construction and never mixed within one deployment (spec.md §9 Open
// Question).
type FillMode int

const (
	// ClientDriven returns miss to the caller, who is expected to fetch
	// from the backing store and call CacheSet itself.
	ClientDriven FillMode = iota
	// ServerDriven synchronously fetches from the backing store and
	// populates the slab before returning.
	ServerDriven
)

// Loader fetches a value from the backing store on a server-driven
// fill. It mirrors transport.DBStub.DBGet's shape without requiring
// the handler to import the rpc fabric.
type Loader func(ctx context.Context, key string) (value []byte, found bool, err error)

// Metrics receives the handler's hit/miss/invalidate/update events.
// Satisfied by *metrics/prom.FreshnessAdapter; nil by default (no
// export), matching the teacher's own optional-metrics-adapter shape
// (_examples/IvanBrykalov-shardcache/internal/slabengine's Metrics field).
type Metrics interface {
	Hit()
	Miss()
	Invalidate()
	Update()
}

// Handler serves the cache RPC surface for one shard.
type Handler struct {
	slab     slab.Slab
	fillMode FillMode
	load     Loader
	metrics  Metrics

	hits        atomic.Int64
	misses      atomic.Int64
	invalidates atomic.Int64
	updates     atomic.Int64

	defaultTTL atomic.Int64 // seconds; 0 = never expire

	// loadGroup coalesces concurrent server-driven fills for the same
	// key, so a thundering herd of misses on one hot key triggers a
	// single Loader call (spec.md §4.3 "Fill races"), the same
	// singleflight-coalescing shape internal/slabengine.GetOrLoad uses
	// for its own miss path.
	loadGroup singleflight.Group[string, loadResult]
}

type loadResult struct {
	value []byte
	found bool
}

// Option configures optional Handler behavior.
type Option func(*Handler)

// WithMetrics exports hit/miss/invalidate/update events to m.
func WithMetrics(m Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New constructs a handler backed by s. load is required when
// fillMode is ServerDriven and ignored otherwise.
func New(s slab.Slab, fillMode FillMode, load Loader, opts ...Option) *Handler {
	h := &Handler{slab: s, fillMode: fillMode, load: load}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CacheGet implements Get(k) → (found, value) (spec.md §4.4).
func (h *Handler) CacheGet(ctx context.Context, req transport.CacheGetRequest) (transport.CacheGetResponse, error) {
	if v, ok := h.slab.Get(req.Key); ok {
		h.hits.Add(1)
		if h.metrics != nil {
			h.metrics.Hit()
		}
		return transport.CacheGetResponse{Value: v, Success: true}, nil
	}
	h.misses.Add(1)
	if h.metrics != nil {
		h.metrics.Miss()
	}

	if h.fillMode != ServerDriven {
		return transport.CacheGetResponse{Success: false}, nil
	}
	if h.load == nil {
		log.Printf("cacheserver: server-driven fill configured without a loader for key %q", req.Key)
		return transport.CacheGetResponse{Success: false}, nil
	}

	if n := h.loadGroup.InFlight(); n > 0 {
		log.Printf("cacheserver: joining %d in-flight fill(s), key %q", n, req.Key)
	}

	res, err := h.loadGroup.Do(ctx, req.Key, func() (loadResult, error) {
		v, found, loadErr := h.load(ctx, req.Key)
		if loadErr != nil || !found {
			return loadResult{}, loadErr
		}
		h.slab.Set(req.Key, v, h.defaultTTL.Load())
		return loadResult{value: v, found: true}, nil
	})
	if err != nil || !res.found {
		return transport.CacheGetResponse{Success: false}, nil
	}
	return transport.CacheGetResponse{Value: res.value, Success: true}, nil
}

// CacheSet implements Set(k, v, ttl) → ok: unconditional overwrite.
func (h *Handler) CacheSet(_ context.Context, req transport.CacheSetRequest) (transport.CacheSetResponse, error) {
	h.slab.Set(req.Key, req.Value, req.TTL)
	return transport.CacheSetResponse{Success: true}, nil
}

// CacheSetTTL updates the process-wide default TTL used for misses/fills.
func (h *Handler) CacheSetTTL(_ context.Context, req transport.CacheSetTTLRequest) (transport.CacheSetTTLResponse, error) {
	h.defaultTTL.Store(req.TTL)
	return transport.CacheSetTTLResponse{Success: true}, nil
}

// CacheGetMR returns misses/(hits+misses), or -1 if no requests seen.
func (h *Handler) CacheGetMR(context.Context) (transport.CacheGetMRResponse, error) {
	hits := h.hits.Load()
	misses := h.misses.Load()
	total := hits + misses
	if total == 0 {
		return transport.CacheGetMRResponse{MissRatio: -1, Success: true}, nil
	}
	return transport.CacheGetMRResponse{MissRatio: float64(misses) / float64(total), Success: true}, nil
}

// CacheInvalidate implements Invalidate(k) → ok: slab DELETE(k).
func (h *Handler) CacheInvalidate(_ context.Context, req transport.CacheInvalidateRequest) (transport.CacheInvalidateResponse, error) {
	h.slab.Delete(req.Key)
	h.invalidates.Add(1)
	if h.metrics != nil {
		h.metrics.Invalidate()
	}
	return transport.CacheInvalidateResponse{Success: true}, nil
}

// CacheUpdate implements Update(k, v) → ok: slab REPLACE(k, v, 0).
// Absence of the key is logged, not fatal, and still counts as an
// update attempt (spec.md §7 "ReplaceMissingKey").
func (h *Handler) CacheUpdate(_ context.Context, req transport.CacheUpdateRequest) (transport.CacheUpdateResponse, error) {
	ok := h.slab.ReplaceIfPresent(req.Key, req.Value)
	h.updates.Add(1)
	if h.metrics != nil {
		h.metrics.Update()
	}
	if !ok {
		log.Printf("cacheserver: update on absent key %q", req.Key)
	}
	return transport.CacheUpdateResponse{Success: ok}, nil
}

// CacheGetFreshnessStats returns the invalidate/update counters.
func (h *Handler) CacheGetFreshnessStats(context.Context) (transport.CacheFreshnessStatsResponse, error) {
	return transport.CacheFreshnessStatsResponse{
		NumInvalidates: h.invalidates.Load(),
		NumUpdates:     h.updates.Load(),
		Success:        true,
	}, nil
}

var _ transport.CacheStub = (*Handler)(nil)
