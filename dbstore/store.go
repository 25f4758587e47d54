// Package dbstore implements the backing-store side of the system:
// the authoritative key/value store plus the server-side evaluation
// of the freshness policy on every DBPut (spec.md §4.2 "evaluated
// once per write, at the backing-store side").
//
// Grounded on _examples/IvanBrykalov-shardcache/cache/cache.go's
// shard-local RWMutex-guarded map for the storage half, and on
// tracker/freshness for the decision half; the backing store is the
// one component in this module that owns both.
package dbstore

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/avkuznetsov/freshcache/freshness"
	"github.com/avkuznetsov/freshcache/internal/util"
	"github.com/avkuznetsov/freshcache/tracker"
	"github.com/avkuznetsov/freshcache/transport"
)

// Metrics receives the store's EW-estimate observations. Satisfied by
// *metrics/prom.FreshnessAdapter; nil by default (no export).
type Metrics interface {
	ObserveEW(ew float64)
}

// Store is the authoritative backing store. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte

	tracker tracker.Tracker
	costs   freshness.Costs
	mode    freshness.Mode
	metrics Metrics

	shards      []transport.CacheStub
	shardOf     func(key string, n int) int
	fanoutAsync bool

	readCount   atomic.Int64
	writeCount  atomic.Int64
	inFlight    atomic.Int64
	maxInFlight int64
}

// Options configures a Store.
type Options struct {
	Tracker tracker.Tracker
	Costs   freshness.Costs
	Mode    freshness.Mode

	// Metrics, if set, receives an ObserveEW call for every EW estimate
	// consulted while deciding a write's freshness action.
	Metrics Metrics

	// Shards are the cache stubs a freshness action is fanned out to,
	// indexed by hash(key) mod len(Shards).
	Shards []transport.CacheStub

	// FanoutAsync runs the cache-side fanout in a background goroutine
	// instead of blocking DBPut on it, matching spec.md §4.3's
	// "DBPut... in turn fans out... to the cache shard(s)" without
	// making the backing store's write latency depend on cache RTT.
	FanoutAsync bool

	// MaxInFlight bounds the load gauge DBGetLoad reports; 0 disables
	// the gauge (Load always reports 0).
	MaxInFlight int64
}

// New constructs a Store. opt.Tracker may be nil only if opt.Mode
// never needs EW (e.g. TTL_ONLY/INVALIDATE_ALWAYS/UPDATE_ALWAYS
// deployments that never send EWAdaptive).
func New(opt Options) *Store {
	return &Store{
		data:        make(map[string][]byte),
		tracker:     opt.Tracker,
		costs:       opt.Costs,
		mode:        opt.Mode,
		metrics:     opt.Metrics,
		shards:      opt.Shards,
		shardOf:     util.RouteIndex[string],
		fanoutAsync: opt.FanoutAsync,
		maxInFlight: opt.MaxInFlight,
	}
}

// DBGet implements DBGet{key}→{value, found}.
func (s *Store) DBGet(_ context.Context, req transport.DBGetRequest) (transport.DBGetResponse, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.mu.RLock()
	v, ok := s.data[req.Key]
	s.mu.RUnlock()

	s.readCount.Add(1)
	if s.tracker != nil {
		s.tracker.RecordRead(req.Key)
	}
	if !ok {
		return transport.DBGetResponse{Found: false}, nil
	}
	return transport.DBGetResponse{Value: v, Found: true}, nil
}

// DBPut implements DBPut{key, value, ew}→{success}: stores the value,
// then evaluates the freshness policy and fans the resulting action
// out to the owning cache shard.
func (s *Store) DBPut(ctx context.Context, req transport.DBPutRequest) (transport.DBPutResponse, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	s.data[req.Key] = req.Value
	s.mu.Unlock()

	s.writeCount.Add(1)
	if s.tracker != nil {
		s.tracker.RecordWrite(req.Key)
	}

	action := s.decide(req.Key, req.EW)
	if len(s.shards) == 0 {
		return transport.DBPutResponse{Success: true}, nil
	}

	fanout := func() { s.fanout(ctx, action, req.Key, req.Value) }
	if s.fanoutAsync {
		go fanout()
	} else {
		fanout()
	}
	return transport.DBPutResponse{Success: true}, nil
}

func (s *Store) decide(key string, ew float64) freshness.Action {
	mode := s.mode
	switch ew {
	case transport.EWTTLOnly:
		mode = freshness.TTLOnly
	case transport.EWInvalidateAlways:
		mode = freshness.InvalidateAlways
	case transport.EWUpdateAlways:
		mode = freshness.UpdateAlways
	case transport.EWAdaptive:
		if s.tracker != nil {
			ew = s.tracker.EW(key)
		} else {
			ew = tracker.ColdEW
		}
		if s.metrics != nil {
			s.metrics.ObserveEW(ew)
		}
	}
	return freshness.Decide(mode, ew, s.costs)
}

func (s *Store) fanout(ctx context.Context, action freshness.Action, key string, value []byte) {
	stub := s.shards[s.shardOf(key, len(s.shards))]
	var err error
	switch action {
	case freshness.Invalidate:
		_, err = stub.CacheInvalidate(ctx, transport.CacheInvalidateRequest{Key: key})
	case freshness.Update:
		_, err = stub.CacheUpdate(ctx, transport.CacheUpdateRequest{Key: key, Value: value})
	case freshness.Skip:
		return
	}
	if err != nil {
		log.Printf("dbstore: freshness fanout %s for key %q failed: %v", action, key, err)
	}
}

// DBDelete implements DBDelete{key}→{success}.
func (s *Store) DBDelete(_ context.Context, req transport.DBDeleteRequest) (transport.DBDeleteResponse, error) {
	s.mu.Lock()
	delete(s.data, req.Key)
	s.mu.Unlock()
	return transport.DBDeleteResponse{Success: true}, nil
}

// DBGetLoad implements DBGetLoad{}→{load}: the fraction of
// MaxInFlight currently in use, as a simple backpressure signal for
// callers deciding whether to throttle.
func (s *Store) DBGetLoad(context.Context) (transport.DBLoadResponse, error) {
	if s.maxInFlight <= 0 {
		return transport.DBLoadResponse{Load: 0}, nil
	}
	return transport.DBLoadResponse{Load: float64(s.inFlight.Load()) / float64(s.maxInFlight)}, nil
}

// DBStartRecord implements DBStartRecord{}→{success}: resets the read
// and write counters to begin a fresh measurement window.
func (s *Store) DBStartRecord(context.Context) (transport.DBStartRecordResponse, error) {
	s.readCount.Store(0)
	s.writeCount.Store(0)
	return transport.DBStartRecordResponse{Success: true}, nil
}

// DBGetReadCount implements DBGetReadCount{}→{read_count}.
func (s *Store) DBGetReadCount(context.Context) (transport.DBReadCountResponse, error) {
	return transport.DBReadCountResponse{ReadCount: s.readCount.Load()}, nil
}

// DBGetWriteCount implements DBGetWriteCount{}→{write_count}.
func (s *Store) DBGetWriteCount(context.Context) (transport.DBWriteCountResponse, error) {
	return transport.DBWriteCountResponse{WriteCount: s.writeCount.Load()}, nil
}

var _ transport.DBStub = (*Store)(nil)
