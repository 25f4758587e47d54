package dbstore

import (
	"context"
	"testing"

	"github.com/avkuznetsov/freshcache/freshness"
	"github.com/avkuznetsov/freshcache/tracker"
	"github.com/avkuznetsov/freshcache/transport"
)

// fakeCacheStub records every fanout call it receives.
type fakeCacheStub struct {
	invalidated []string
	updated     []string
	updateVal   map[string][]byte
}

func newFakeCacheStub() *fakeCacheStub {
	return &fakeCacheStub{updateVal: map[string][]byte{}}
}

func (f *fakeCacheStub) CacheGet(context.Context, transport.CacheGetRequest) (transport.CacheGetResponse, error) {
	return transport.CacheGetResponse{}, nil
}
func (f *fakeCacheStub) CacheSet(context.Context, transport.CacheSetRequest) (transport.CacheSetResponse, error) {
	return transport.CacheSetResponse{Success: true}, nil
}
func (f *fakeCacheStub) CacheSetTTL(context.Context, transport.CacheSetTTLRequest) (transport.CacheSetTTLResponse, error) {
	return transport.CacheSetTTLResponse{Success: true}, nil
}
func (f *fakeCacheStub) CacheGetMR(context.Context) (transport.CacheGetMRResponse, error) {
	return transport.CacheGetMRResponse{}, nil
}
func (f *fakeCacheStub) CacheInvalidate(_ context.Context, req transport.CacheInvalidateRequest) (transport.CacheInvalidateResponse, error) {
	f.invalidated = append(f.invalidated, req.Key)
	return transport.CacheInvalidateResponse{Success: true}, nil
}
func (f *fakeCacheStub) CacheUpdate(_ context.Context, req transport.CacheUpdateRequest) (transport.CacheUpdateResponse, error) {
	f.updated = append(f.updated, req.Key)
	f.updateVal[req.Key] = req.Value
	return transport.CacheUpdateResponse{Success: true}, nil
}
func (f *fakeCacheStub) CacheGetFreshnessStats(context.Context) (transport.CacheFreshnessStatsResponse, error) {
	return transport.CacheFreshnessStatsResponse{}, nil
}

func TestStore_GetPutRoundTrip(t *testing.T) {
	t.Parallel()

	s := New(Options{Mode: freshness.InvalidateAlways})
	ctx := context.Background()

	if _, err := s.DBPut(ctx, transport.DBPutRequest{Key: "k", Value: []byte("v"), EW: transport.EWInvalidateAlways}); err != nil {
		t.Fatalf("DBPut error: %v", err)
	}
	resp, err := s.DBGet(ctx, transport.DBGetRequest{Key: "k"})
	if err != nil {
		t.Fatalf("DBGet error: %v", err)
	}
	if !resp.Found || string(resp.Value) != "v" {
		t.Fatalf("DBGet = %+v, want found v", resp)
	}
}

func TestStore_PutFansOutInvalidate(t *testing.T) {
	t.Parallel()

	stub := newFakeCacheStub()
	s := New(Options{Shards: []transport.CacheStub{stub}})
	ctx := context.Background()

	if _, err := s.DBPut(ctx, transport.DBPutRequest{Key: "k", Value: []byte("v"), EW: transport.EWInvalidateAlways}); err != nil {
		t.Fatalf("DBPut error: %v", err)
	}
	if len(stub.invalidated) != 1 || stub.invalidated[0] != "k" {
		t.Fatalf("invalidated = %v, want [k]", stub.invalidated)
	}
}

func TestStore_PutFansOutUpdate(t *testing.T) {
	t.Parallel()

	stub := newFakeCacheStub()
	s := New(Options{Shards: []transport.CacheStub{stub}})
	ctx := context.Background()

	if _, err := s.DBPut(ctx, transport.DBPutRequest{Key: "k", Value: []byte("v2"), EW: transport.EWUpdateAlways}); err != nil {
		t.Fatalf("DBPut error: %v", err)
	}
	if len(stub.updated) != 1 || string(stub.updateVal["k"]) != "v2" {
		t.Fatalf("updated = %v, vals = %v", stub.updated, stub.updateVal)
	}
}

// Adaptive mode with a cold tracker (no prior reads) must invalidate,
// per spec.md §4.2: ew == -1 always yields INVALIDATE.
func TestStore_AdaptiveColdKeyInvalidates(t *testing.T) {
	t.Parallel()

	stub := newFakeCacheStub()
	s := New(Options{
		Tracker: tracker.NewExactPerKey(),
		Costs:   freshness.Costs{CI: 10, CU: 46},
		Mode:    freshness.Adaptive,
		Shards:  []transport.CacheStub{stub},
	})
	ctx := context.Background()

	if _, err := s.DBPut(ctx, transport.DBPutRequest{Key: "k", Value: []byte("v"), EW: transport.EWAdaptive}); err != nil {
		t.Fatalf("DBPut error: %v", err)
	}
	if len(stub.invalidated) != 1 {
		t.Fatalf("invalidated = %v, want one invalidate for cold key", stub.invalidated)
	}
}

func TestStore_ReadWriteCounters(t *testing.T) {
	t.Parallel()

	s := New(Options{Mode: freshness.InvalidateAlways})
	ctx := context.Background()

	s.DBPut(ctx, transport.DBPutRequest{Key: "k", Value: []byte("v"), EW: transport.EWInvalidateAlways})
	s.DBGet(ctx, transport.DBGetRequest{Key: "k"})
	s.DBGet(ctx, transport.DBGetRequest{Key: "k"})

	wc, _ := s.DBGetWriteCount(ctx)
	rc, _ := s.DBGetReadCount(ctx)
	if wc.WriteCount != 1 || rc.ReadCount != 2 {
		t.Fatalf("writeCount=%d readCount=%d, want 1,2", wc.WriteCount, rc.ReadCount)
	}

	if _, err := s.DBStartRecord(ctx); err != nil {
		t.Fatalf("DBStartRecord error: %v", err)
	}
	wc, _ = s.DBGetWriteCount(ctx)
	rc, _ = s.DBGetReadCount(ctx)
	if wc.WriteCount != 0 || rc.ReadCount != 0 {
		t.Fatalf("counters after DBStartRecord = %d,%d, want 0,0", wc.WriteCount, rc.ReadCount)
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s := New(Options{Mode: freshness.InvalidateAlways})
	ctx := context.Background()

	s.DBPut(ctx, transport.DBPutRequest{Key: "k", Value: []byte("v"), EW: transport.EWInvalidateAlways})
	if _, err := s.DBDelete(ctx, transport.DBDeleteRequest{Key: "k"}); err != nil {
		t.Fatalf("DBDelete error: %v", err)
	}
	resp, _ := s.DBGet(ctx, transport.DBGetRequest{Key: "k"})
	if resp.Found {
		t.Fatal("key found after delete")
	}
}
