package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/avkuznetsov/freshcache/freshness"
	"github.com/avkuznetsov/freshcache/internal/util"
	"github.com/avkuznetsov/freshcache/tracker"
	"github.com/avkuznetsov/freshcache/transport"
)

// Config wires a Client to its stubs and tunables. Zero-value fields
// fall back to spec.md §6's documented defaults.
type Config struct {
	// CacheStubs are the shard stubs; keyed operations pick one by
	// hash(key) mod len(CacheStubs), non-keyed operations fan out to
	// all of them (spec.md §4.3 "Connections").
	CacheStubs []transport.CacheStub

	// DB is the backing-store stub.
	DB transport.DBStub

	// Tracker estimates EW for writes this client issues. May be nil;
	// in that case writes are sent with the adaptive sentinel so a
	// server holding its own centralized tracker decides instead
	// (spec.md §4.2 "tracker state may also live server-side").
	Tracker tracker.Tracker

	// Mode selects a static override transmitted on every DBPut in
	// place of Tracker's EW estimate (Tracker still records reads and
	// writes); Adaptive (the zero value) uses Tracker.
	Mode freshness.Mode

	// MaxConcurrentRPCs bounds in-flight cache RPCs; 0 uses 1000
	// (spec.md §6 max_concurrent_rpcs default).
	MaxConcurrentRPCs int64

	// MaxDBConcurrentRPCs bounds in-flight backing-store RPCs; 0 uses
	// 100 (spec.md §6 max_db_concurrent_rpcs default).
	MaxDBConcurrentRPCs int64

	// GetRetry configures backing-store DBGet retries; the zero value
	// uses DefaultGetRetry.
	GetRetry RetryPolicy

	// Metrics, if set, receives the in-flight shard-RPC gauge on every
	// change (spec.md §8 invariant 9 "in_flight <= MAX_CONCURRENT_RPCS
	// at all observation points").
	Metrics Metrics
}

// Metrics receives the client's in-flight gauge. Satisfied by
// *metrics/prom.FreshnessAdapter; nil by default (no export).
type Metrics interface {
	SetInFlight(n int64)
}

const (
	defaultMaxConcurrentRPCs   = 1000
	defaultMaxDBConcurrentRPCs = 100
)

// Client is the async cache/DB RPC dispatch fabric (spec.md §4.3).
// All methods are safe for concurrent use.
type Client struct {
	cfg Config

	shardSem *semaphore.Weighted
	dbSem    *semaphore.Weighted
	calls    callPool

	shardInFlight atomic.Int64

	latMu     sync.Mutex
	latencies []time.Duration

	closed chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Client. Defaults are applied for zero-value tunables.
func New(cfg Config) *Client {
	if cfg.MaxConcurrentRPCs <= 0 {
		cfg.MaxConcurrentRPCs = defaultMaxConcurrentRPCs
	}
	if cfg.MaxDBConcurrentRPCs <= 0 {
		cfg.MaxDBConcurrentRPCs = defaultMaxDBConcurrentRPCs
	}
	if cfg.GetRetry == (RetryPolicy{}) {
		cfg.GetRetry = DefaultGetRetry
	}
	return &Client{
		cfg:      cfg,
		shardSem: semaphore.NewWeighted(cfg.MaxConcurrentRPCs),
		dbSem:    semaphore.NewWeighted(cfg.MaxDBConcurrentRPCs),
		closed:   make(chan struct{}),
	}
}

// addShardInFlight adjusts the in-flight shard-RPC counter and, if a
// Metrics sink is configured, republishes the new value.
func (c *Client) addShardInFlight(delta int64) {
	n := c.shardInFlight.Add(delta)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SetInFlight(n)
	}
}

func (c *Client) shardFor(key string) transport.CacheStub {
	idx := util.RouteIndex(key, len(c.cfg.CacheStubs))
	return c.cfg.CacheStubs[idx]
}

// withShutdown derives a context that is cancelled when either ctx is
// done or Close has been called, so in-flight calls unblock on
// shutdown instead of hanging on a caller context with no deadline
// (spec.md §4.3 "Cancellation", §5 "graceful shutdown ... resolves
// every outstanding promise with a cancelled error").
func (c *Client) withShutdown(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-stop:
		}
	}()
	return merged, func() {
		close(stop)
		cancel()
	}
}

// resolveErr maps a context-cancellation error observed while shutting
// down to ErrShuttingDown, matching spec.md §7 "Cancelled" ("shutdown
// ... promises resolved with cancellation exception"); any other error
// passes through unchanged.
func (c *Client) resolveErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-c.closed:
		if errors.Is(err, context.Canceled) {
			return ErrShuttingDown
		}
	default:
	}
	return err
}

func (c *Client) recordLatency(start time.Time) {
	d := time.Since(start)
	c.latMu.Lock()
	c.latencies = append(c.latencies, d)
	c.latMu.Unlock()
}

// Latencies returns a copy of the recorded per-call latency log
// (spec.md §3 "Latency log"), for reporting only.
func (c *Client) Latencies() []time.Duration {
	c.latMu.Lock()
	defer c.latMu.Unlock()
	out := make([]time.Duration, len(c.latencies))
	copy(out, c.latencies)
	return out
}

// GetAsync records a read in the tracker and dispatches CacheGet to
// the shard owning key. The returned future resolves with
// ErrCacheMiss (not a transport error) when the key is absent, so
// callers can drive their configured fill path.
func (c *Client) GetAsync(ctx context.Context, key string) *Future[[]byte] {
	fut := newFuture[[]byte]()

	ctx, cancel := c.withShutdown(ctx)
	if err := c.shardSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(nil, c.resolveErr(err))
		return fut
	}
	c.addShardInFlight(1)
	if c.cfg.Tracker != nil {
		c.cfg.Tracker.RecordRead(key)
	}
	call := c.calls.acquire(kindGet, key)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.shardSem.Release(1)
		defer c.addShardInFlight(-1)
		defer c.calls.release(call)

		stub := c.shardFor(key)
		resp, err := stub.CacheGet(ctx, transport.CacheGetRequest{Key: key})
		c.recordLatency(call.startedAt)
		switch {
		case err != nil:
			fut.resolve(nil, c.resolveErr(err))
		case !resp.Success:
			fut.resolve(nil, ErrCacheMiss)
		default:
			fut.resolve(resp.Value, nil)
		}
	}()
	return fut
}

// SetAsync records a write in the tracker, derives the EW value to
// transmit (spec.md §6 "ew is a float carried on every DBPut"), and
// issues DBPut to the backing store, which evaluates the freshness
// policy server-side and fans out the resulting action.
func (c *Client) SetAsync(ctx context.Context, key string, value []byte) *Future[bool] {
	fut := newFuture[bool]()

	ctx, cancel := c.withShutdown(ctx)
	if err := c.dbSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(false, c.resolveErr(err))
		return fut
	}
	if c.cfg.Tracker != nil {
		c.cfg.Tracker.RecordWrite(key)
	}
	ew := c.ewForWrite(key)
	call := c.calls.acquire(kindSet, key)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.dbSem.Release(1)
		defer c.calls.release(call)

		resp, err := c.cfg.DB.DBPut(ctx, transport.DBPutRequest{Key: key, Value: value, EW: ew})
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(false, c.resolveErr(err))
			return
		}
		fut.resolve(resp.Success, nil)
	}()
	return fut
}

func (c *Client) ewForWrite(key string) float64 {
	switch c.cfg.Mode {
	case freshness.TTLOnly:
		return transport.EWTTLOnly
	case freshness.InvalidateAlways:
		return transport.EWInvalidateAlways
	case freshness.UpdateAlways:
		return transport.EWUpdateAlways
	}
	if c.cfg.Tracker == nil {
		return transport.EWAdaptive
	}
	return c.cfg.Tracker.EW(key)
}

// DBPutDirectAsync writes straight to the backing store with the
// TTL_ONLY sentinel (spec.md §6 "ew ... -2 = TTL-only"), so the
// freshness policy never fans anything out to the cache. This is the
// operation a warm-up driver uses to populate the backing store for
// every distinct key in a trace before replay begins (spec.md §4.5),
// distinct from SetAsync which always lets the tracker/policy decide.
func (c *Client) DBPutDirectAsync(ctx context.Context, key string, value []byte) *Future[bool] {
	fut := newFuture[bool]()

	ctx, cancel := c.withShutdown(ctx)
	if err := c.dbSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(false, c.resolveErr(err))
		return fut
	}
	call := c.calls.acquire(kindSet, key)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.dbSem.Release(1)
		defer c.calls.release(call)

		resp, err := c.cfg.DB.DBPut(ctx, transport.DBPutRequest{Key: key, Value: value, EW: transport.EWTTLOnly})
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(false, c.resolveErr(err))
			return
		}
		fut.resolve(resp.Success, nil)
	}()
	return fut
}

// DBGetAsync reads directly from the backing store, retrying
// transient failures per c.cfg.GetRetry (spec.md §4.3 "Retry policy").
func (c *Client) DBGetAsync(ctx context.Context, key string) *Future[[]byte] {
	fut := newFuture[[]byte]()

	ctx, cancel := c.withShutdown(ctx)
	if err := c.dbSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(nil, c.resolveErr(err))
		return fut
	}
	call := c.calls.acquire(kindGet, key)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.dbSem.Release(1)
		defer c.calls.release(call)

		var resp transport.DBGetResponse
		err := c.cfg.GetRetry.do(ctx, func(attemptCtx context.Context) error {
			var attemptErr error
			resp, attemptErr = c.cfg.DB.DBGet(attemptCtx, transport.DBGetRequest{Key: key})
			return attemptErr
		})
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(nil, c.resolveErr(err))
			return
		}
		if !resp.Found {
			fut.resolve(nil, ErrCacheMiss)
			return
		}
		fut.resolve(resp.Value, nil)
	}()
	return fut
}

// InvalidateAsync issues Invalidate directly against the shard owning
// key, for maintenance/driver use outside the normal write path.
func (c *Client) InvalidateAsync(ctx context.Context, key string) *Future[bool] {
	fut := newFuture[bool]()
	ctx, cancel := c.withShutdown(ctx)
	if err := c.shardSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(false, c.resolveErr(err))
		return fut
	}
	c.addShardInFlight(1)
	call := c.calls.acquire(kindInvalidate, key)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.shardSem.Release(1)
		defer c.addShardInFlight(-1)
		defer c.calls.release(call)

		resp, err := c.shardFor(key).CacheInvalidate(ctx, transport.CacheInvalidateRequest{Key: key})
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(false, c.resolveErr(err))
			return
		}
		fut.resolve(resp.Success, nil)
	}()
	return fut
}

// SetCacheAsync issues an unconditional CacheSet directly against the
// shard owning key, bypassing the tracker and freshness policy
// entirely. This is the operation a client-driven deployment performs
// after a cache miss and a successful DBGet (spec.md §4.3 "Fill
// races": "the cache returns miss to the client, which then fetches
// from DB and performs SetCache(k, v, ttl)"), and the operation a
// warm-up driver uses to pre-fill a fraction of the trace into the
// cache ahead of replay (spec.md §4.5).
func (c *Client) SetCacheAsync(ctx context.Context, key string, value []byte, ttl time.Duration) *Future[bool] {
	fut := newFuture[bool]()
	ctx, cancel := c.withShutdown(ctx)
	if err := c.shardSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(false, c.resolveErr(err))
		return fut
	}
	c.addShardInFlight(1)
	call := c.calls.acquire(kindSet, key)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.shardSem.Release(1)
		defer c.addShardInFlight(-1)
		defer c.calls.release(call)

		resp, err := c.shardFor(key).CacheSet(ctx, transport.CacheSetRequest{
			Key: key, Value: value, TTL: int64(ttl.Seconds()),
		})
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(false, c.resolveErr(err))
			return
		}
		fut.resolve(resp.Success, nil)
	}()
	return fut
}

// UpdateAsync issues Update directly against the shard owning key.
func (c *Client) UpdateAsync(ctx context.Context, key string, value []byte) *Future[bool] {
	fut := newFuture[bool]()
	ctx, cancel := c.withShutdown(ctx)
	if err := c.shardSem.Acquire(ctx, 1); err != nil {
		cancel()
		fut.resolve(false, c.resolveErr(err))
		return fut
	}
	c.addShardInFlight(1)
	call := c.calls.acquire(kindUpdate, key)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.shardSem.Release(1)
		defer c.addShardInFlight(-1)
		defer c.calls.release(call)

		resp, err := c.shardFor(key).CacheUpdate(ctx, transport.CacheUpdateRequest{Key: key, Value: value})
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(false, c.resolveErr(err))
			return
		}
		fut.resolve(resp.Success, nil)
	}()
	return fut
}

// SetTTLAsync fans CacheSetTTL out to every shard (spec.md §4.3
// "non-keyed operations round-robin across all cache stubs"); it
// succeeds only if every shard acknowledges.
func (c *Client) SetTTLAsync(ctx context.Context, ttl time.Duration) *Future[bool] {
	fut := newFuture[bool]()
	call := c.calls.acquire(kindNonKeyed, "")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.calls.release(call)

		g, gctx := errgroup.WithContext(ctx)
		ttlSeconds := int64(ttl.Seconds())
		results := make([]bool, len(c.cfg.CacheStubs))
		for i, stub := range c.cfg.CacheStubs {
			i, stub := i, stub
			g.Go(func() error {
				resp, err := stub.CacheSetTTL(gctx, transport.CacheSetTTLRequest{TTL: ttlSeconds})
				if err != nil {
					return err
				}
				results[i] = resp.Success
				return nil
			})
		}
		err := g.Wait()
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(false, err)
			return
		}
		ok := true
		for _, r := range results {
			ok = ok && r
		}
		fut.resolve(ok, nil)
	}()
	return fut
}

// GetMRAsync averages the miss ratio across shards that have served
// at least one request, ignoring the -1 "no requests" sentinel
// (spec.md §4.4 GetMR, §4.3 "miss ratio averaged").
func (c *Client) GetMRAsync(ctx context.Context) *Future[float64] {
	fut := newFuture[float64]()
	call := c.calls.acquire(kindNonKeyed, "")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.calls.release(call)

		g, gctx := errgroup.WithContext(ctx)
		mrs := make([]float64, len(c.cfg.CacheStubs))
		for i, stub := range c.cfg.CacheStubs {
			i, stub := i, stub
			g.Go(func() error {
				resp, err := stub.CacheGetMR(gctx)
				if err != nil {
					return err
				}
				mrs[i] = resp.MissRatio
				return nil
			})
		}
		err := g.Wait()
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(-1, err)
			return
		}
		var sum float64
		var n int
		for _, mr := range mrs {
			if mr < 0 {
				continue
			}
			sum += mr
			n++
		}
		if n == 0 {
			fut.resolve(-1, nil)
			return
		}
		fut.resolve(sum/float64(n), nil)
	}()
	return fut
}

// FreshnessStats is the client-aggregated view of
// CacheGetFreshnessStats across all shards.
type FreshnessStats struct {
	NumInvalidates int64
	NumUpdates     int64
}

// FreshnessStatsAsync sums the invalidate/update counters across all
// shards (spec.md §4.3 "freshness counters summed").
func (c *Client) FreshnessStatsAsync(ctx context.Context) *Future[FreshnessStats] {
	fut := newFuture[FreshnessStats]()
	call := c.calls.acquire(kindNonKeyed, "")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.calls.release(call)

		g, gctx := errgroup.WithContext(ctx)
		stats := make([]transport.CacheFreshnessStatsResponse, len(c.cfg.CacheStubs))
		for i, stub := range c.cfg.CacheStubs {
			i, stub := i, stub
			g.Go(func() error {
				resp, err := stub.CacheGetFreshnessStats(gctx)
				if err != nil {
					return err
				}
				stats[i] = resp
				return nil
			})
		}
		err := g.Wait()
		c.recordLatency(call.startedAt)
		if err != nil {
			fut.resolve(FreshnessStats{}, err)
			return
		}
		var out FreshnessStats
		for _, s := range stats {
			out.NumInvalidates += s.NumInvalidates
			out.NumUpdates += s.NumUpdates
		}
		fut.resolve(out, nil)
	}()
	return fut
}

// InFlight reports the current number of in-flight cache-shard RPCs,
// for backpressure observation (spec.md §8 invariant 9).
func (c *Client) InFlight() int64 {
	return c.shardInFlight.Load()
}

// Close cancels in-flight calls (their futures resolve with
// ErrShuttingDown unless already resolved) and then waits for their
// goroutines to finish, matching spec.md §4.3
// "Cancellation": the client destructor shuts down the completion
// path and joins before the object is freed.
func (c *Client) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	c.wg.Wait()
}
