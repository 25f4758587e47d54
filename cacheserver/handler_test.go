package cacheserver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/avkuznetsov/freshcache/internal/slabengine"
	"github.com/avkuznetsov/freshcache/slab"
	"github.com/avkuznetsov/freshcache/transport"
)

func newTestHandler(t *testing.T, fillMode FillMode, load Loader) *Handler {
	t.Helper()
	c := slabengine.New[string, []byte](slabengine.Options[string, []byte]{Capacity: 64})
	t.Cleanup(func() { _ = c.Close() })
	return New(slab.New(c), fillMode, load)
}

func TestHandler_GetSetRoundTrip(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, ClientDriven, nil)
	ctx := context.Background()

	if _, err := h.CacheSet(ctx, transport.CacheSetRequest{Key: "k", Value: []byte("v"), TTL: 0}); err != nil {
		t.Fatalf("CacheSet error: %v", err)
	}
	resp, err := h.CacheGet(ctx, transport.CacheGetRequest{Key: "k"})
	if err != nil {
		t.Fatalf("CacheGet error: %v", err)
	}
	if !resp.Success || string(resp.Value) != "v" {
		t.Fatalf("CacheGet = %+v, want success with value v", resp)
	}
}

func TestHandler_ClientDrivenMissDoesNotFill(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, ClientDriven, func(context.Context, string) ([]byte, bool, error) {
		t.Fatal("loader must not be called in client-driven mode")
		return nil, false, nil
	})

	resp, err := h.CacheGet(context.Background(), transport.CacheGetRequest{Key: "missing"})
	if err != nil {
		t.Fatalf("CacheGet error: %v", err)
	}
	if resp.Success {
		t.Fatal("expected miss")
	}
}

func TestHandler_ServerDrivenFillsOnMiss(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, ServerDriven, func(_ context.Context, key string) ([]byte, bool, error) {
		return []byte("from-db:" + key), true, nil
	})

	resp, err := h.CacheGet(context.Background(), transport.CacheGetRequest{Key: "k"})
	if err != nil {
		t.Fatalf("CacheGet error: %v", err)
	}
	if !resp.Success || string(resp.Value) != "from-db:k" {
		t.Fatalf("CacheGet = %+v, want filled value", resp)
	}

	// second call should hit the now-populated slab, not the loader again.
	resp2, err := h.CacheGet(context.Background(), transport.CacheGetRequest{Key: "k"})
	if err != nil {
		t.Fatalf("CacheGet error: %v", err)
	}
	if !resp2.Success || string(resp2.Value) != "from-db:k" {
		t.Fatalf("CacheGet second call = %+v", resp2)
	}
}

// A thundering herd of concurrent misses on the same key in
// server-driven mode must collapse to a single Loader call (spec.md
// §4.3 "Fill races"), not one per goroutine.
func TestHandler_ServerDrivenFillCoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	var loadCalls atomic.Int64
	h := newTestHandler(t, ServerDriven, func(_ context.Context, key string) ([]byte, bool, error) {
		loadCalls.Add(1)
		return []byte("from-db:" + key), true, nil
	})

	const workers = 64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			resp, err := h.CacheGet(context.Background(), transport.CacheGetRequest{Key: "hot"})
			if err != nil || !resp.Success || string(resp.Value) != "from-db:hot" {
				t.Errorf("CacheGet = %+v, err=%v", resp, err)
			}
		}()
	}
	wg.Wait()

	if n := loadCalls.Load(); n != 1 {
		t.Fatalf("loadCalls = %d, want exactly 1", n)
	}
}

func TestHandler_MissRatio(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, ClientDriven, nil)
	ctx := context.Background()

	mr, err := h.CacheGetMR(ctx)
	if err != nil || mr.MissRatio != -1 {
		t.Fatalf("CacheGetMR before any requests = %+v, err=%v, want -1", mr, err)
	}

	h.CacheGet(ctx, transport.CacheGetRequest{Key: "a"})
	h.CacheSet(ctx, transport.CacheSetRequest{Key: "b", Value: []byte("v")})
	h.CacheGet(ctx, transport.CacheGetRequest{Key: "b"})

	mr, err = h.CacheGetMR(ctx)
	if err != nil {
		t.Fatalf("CacheGetMR error: %v", err)
	}
	if mr.MissRatio != 0.5 {
		t.Fatalf("CacheGetMR = %v, want 0.5", mr.MissRatio)
	}
}

func TestHandler_InvalidateAndFreshnessStats(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, ClientDriven, nil)
	ctx := context.Background()

	h.CacheSet(ctx, transport.CacheSetRequest{Key: "k", Value: []byte("v")})
	if _, err := h.CacheInvalidate(ctx, transport.CacheInvalidateRequest{Key: "k"}); err != nil {
		t.Fatalf("CacheInvalidate error: %v", err)
	}
	if resp, _ := h.CacheGet(ctx, transport.CacheGetRequest{Key: "k"}); resp.Success {
		t.Fatal("key present after invalidate")
	}

	stats, err := h.CacheGetFreshnessStats(ctx)
	if err != nil {
		t.Fatalf("CacheGetFreshnessStats error: %v", err)
	}
	if stats.NumInvalidates != 1 {
		t.Fatalf("NumInvalidates = %d, want 1", stats.NumInvalidates)
	}
}

// Mirrors spec.md §8 scenario 5: Update on an absent key succeeds=false
// but still increments num_updates.
func TestHandler_UpdateOnAbsentKey(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, ClientDriven, nil)
	ctx := context.Background()

	resp, err := h.CacheUpdate(ctx, transport.CacheUpdateRequest{Key: "absent", Value: []byte("v")})
	if err != nil {
		t.Fatalf("CacheUpdate error: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false for update on absent key")
	}

	stats, _ := h.CacheGetFreshnessStats(ctx)
	if stats.NumUpdates != 1 {
		t.Fatalf("NumUpdates = %d, want 1", stats.NumUpdates)
	}
}
