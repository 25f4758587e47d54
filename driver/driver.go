// Package driver implements the workload/warm-up driver of spec.md
// §4.5: a consumer of the async RPC fabric that replays a trace of
// (timestamp, key, value_size, is_write) records against the backing
// store and cache.
//
// Kept at interface level per spec.md §4.5 and §1 Non-goals: trace
// parsing, CSV log writers, and machine-stat collectors live outside
// this module. Source is the seam a caller plugs a real trace parser
// into; this package only defines the contract and the replay/warm-up
// control flow, grounded on the teacher's errgroup-driven concurrent
// test helpers (_examples/IvanBrykalov-shardcache/cache/cache_test.go)
// for the worker fan-out shape.
package driver

import (
	"context"
	"math/rand"
	"time"

	"github.com/avkuznetsov/freshcache/internal/util"
	"github.com/avkuznetsov/freshcache/rpc"
)

// Record is one observation in a replayed workload trace (spec.md
// §4.5 "a stream of (timestamp, key, value_size, is_write) records").
type Record struct {
	Timestamp time.Time
	Key       string
	ValueSize int
	IsWrite   bool

	// interArrival is computed by Replay from consecutive Timestamps of
	// the same key;
	// Source implementations never need to set it.
	interArrival time.Duration
}

// Source supplies the trace this driver replays. Real implementations
// (CSV readers, synthetic Zipfian generators, etc.) live outside this
// module; Source exists so this package never depends on one.
type Source interface {
	// Next returns the next record in timestamp order, and false once
	// the trace is exhausted.
	Next() (Record, bool)

	// Keys returns every distinct key appearing anywhere in the trace,
	// used to populate the backing store during warm-up. Implementations
	// that can't enumerate keys ahead of time (pure streaming sources)
	// may return nil; Warmup then does nothing, populating neither the
	// backing store nor the cache.
	Keys() []string
}

// Driver replays a Source's trace against a client.
type Driver struct {
	client           *rpc.Client
	clientDrivenFill bool
	fillTTL          time.Duration
}

// Option configures optional Driver behavior.
type Option func(*Driver)

// WithClientDrivenFill makes Replay perform the client-driven fill path
// on a cache miss (spec.md §4.3 "Fill races"): DBGetAsync followed by
// SetCacheAsync with the given ttl. Without this option, a replayed
// read simply observes the miss and moves on, matching a server-driven
// or miss-only deployment.
func WithClientDrivenFill(ttl time.Duration) Option {
	return func(d *Driver) {
		d.clientDrivenFill = true
		d.fillTTL = ttl
	}
}

// New constructs a Driver bound to client.
func New(client *rpc.Client, opts ...Option) *Driver {
	d := &Driver{client: client}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Warmup populates the backing store for every distinct key src.Keys()
// reports, then pre-fills a 1/warmupFactor fraction of those keys into
// the cache via SetCacheAsync (spec.md §4.5 "Warm-up phase populates the
// backing store for all distinct keys and optionally pre-fills a
// fraction 1/warmup_factor of the trace into the cache").
//
// valueFor supplies the placeholder value written for each key during
// warm-up (the real trace only carries a value size, not a payload).
// Pre-fill writes straight to the cache via SetCacheAsync, bypassing
// the freshness policy entirely — warm-up is establishing initial
// state, not reacting to a write the policy should judge.
func (d *Driver) Warmup(ctx context.Context, src Source, warmupFactor int, valueFor func(key string) []byte) error {
	keys := src.Keys()
	if keys == nil {
		return nil
	}
	for _, k := range keys {
		if _, err := d.client.DBPutDirectAsync(ctx, k, valueFor(k)).Wait(ctx); err != nil {
			return err
		}
	}
	if warmupFactor <= 0 {
		return nil
	}
	for i, k := range keys {
		if i%warmupFactor != 0 {
			continue
		}
		if _, err := d.client.SetCacheAsync(ctx, k, valueFor(k), d.fillTTL).Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Replay issues GetAsync/SetAsync against src's records in timestamp
// order across numWorkers goroutines, sleeping by each record's
// clamped/scaled inter-arrival interval (spec.md §4.5 "the replay
// phase issues asynchronous Get/Set in timestamp order across
// NUM_CPUS threads, sleeping by the inter-arrival interval (clamped to
// [0, max_interval] and scaled)").
//
// Records are partitioned across workers by key hash, so every
// operation on a given key lands on the same worker and is issued in
// the trace's timestamp order relative to that key's other operations
// (spec.md §5 "same-thread, same-shard issue order preserved");
// operations on distinct keys may land on distinct workers and carry
// no ordering guarantee relative to each other, matching spec.md §4.3
// "cross-shard unordered".
func (d *Driver) Replay(ctx context.Context, src Source, numWorkers int, maxInterval time.Duration, speedup float64) error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if speedup <= 0 {
		speedup = 1
	}

	lanes := make([][]Record, numWorkers)
	lastByKey := make(map[string]time.Time)
	for {
		rec, ok := src.Next()
		if !ok {
			break
		}
		if last, seen := lastByKey[rec.Key]; seen {
			rec.interArrival = clampInterval(rec.Timestamp.Sub(last), maxInterval)
		}
		lastByKey[rec.Key] = rec.Timestamp
		lane := util.RouteIndex(rec.Key, numWorkers)
		lanes[lane] = append(lanes[lane], rec)
	}

	errCh := make(chan error, numWorkers)
	for _, lane := range lanes {
		lane := lane
		go func() {
			errCh <- d.runLane(ctx, lane, speedup)
		}()
	}

	var firstErr error
	for range lanes {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Driver) runLane(ctx context.Context, lane []Record, speedup float64) error {
	for _, rec := range lane {
		if rec.interArrival > 0 {
			select {
			case <-time.After(time.Duration(float64(rec.interArrival) / speedup)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := d.issue(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) issue(ctx context.Context, rec Record) error {
	if rec.IsWrite {
		value := make([]byte, rec.ValueSize)
		_, _ = rand.Read(value)
		_, err := d.client.SetAsync(ctx, rec.Key, value).Wait(ctx)
		return err
	}

	_, err := d.client.GetAsync(ctx, rec.Key).Wait(ctx)
	if err != rpc.ErrCacheMiss {
		return err
	}
	if !d.clientDrivenFill {
		return nil
	}

	// Client-driven fill: fetch from the backing store and populate the
	// cache ourselves (spec.md §4.3 "Fill races").
	v, err := d.client.DBGetAsync(ctx, rec.Key).Wait(ctx)
	if err == rpc.ErrCacheMiss {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = d.client.SetCacheAsync(ctx, rec.Key, v, d.fillTTL).Wait(ctx)
	return err
}

func clampInterval(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
