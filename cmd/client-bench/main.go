// Command client-bench drives a synthetic Zipfian workload through the
// full async RPC fabric (rpc.Client) and the workload driver
// (driver.Driver), against either a running cache+DB deployment
// (-cache-addresses/-db-address) or an in-process transport for a
// single-binary demo.
//
// Directly modeled on the teacher's cmd/bench/main.go: same flag
// names where the concept carries over (duration, reads, keys,
// zipf_s, zipf_v, seed, pprof, http), same pprof/Prometheus-on-
// DefaultServeMux wiring, same final report line shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/avkuznetsov/freshcache/cacheserver"
	"github.com/avkuznetsov/freshcache/dbstore"
	"github.com/avkuznetsov/freshcache/driver"
	"github.com/avkuznetsov/freshcache/freshness"
	"github.com/avkuznetsov/freshcache/internal/slabengine"
	pmet "github.com/avkuznetsov/freshcache/metrics/prom"
	"github.com/avkuznetsov/freshcache/rpc"
	"github.com/avkuznetsov/freshcache/slab"
	"github.com/avkuznetsov/freshcache/tracker"
	"github.com/avkuznetsov/freshcache/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		cacheAddresses = flag.String("cache-addresses", "", "comma-separated cache shard base URLs (empty = in-process demo)")
		dbAddress      = flag.String("db-address", "", "backing-store base URL (empty = in-process demo)")
		fill           = flag.String("fill", "client", "fill mode for the in-process demo: client | server")

		workers  = flag.Int("workers", 8, "number of replay worker lanes")
		duration = flag.Duration("duration", 10*time.Second, "approximate benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys       = flag.Int("keys", 100_000, "keyspace size")
		zipfS      = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV      = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		valueSize  = flag.Int("value-size", 64, "bytes per written value")
		warmFactor = flag.Int("warmup-factor", 10, "pre-fill 1/warmup-factor of keys into the cache before replay")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	client, cleanup := buildClient(*cacheAddresses, *dbAddress, *fill)
	defer cleanup()
	defer client.Close()

	src := newZipfSource(*keys, *readPct, *valueSize, *duration, *seed, *zipfS, *zipfV)

	d := driver.New(client, driver.WithClientDrivenFill(time.Minute))

	ctx := context.Background()
	warmupStart := time.Now()
	if err := d.Warmup(ctx, src, *warmFactor, src.valueFor); err != nil {
		log.Fatalf("client-bench: warmup: %v", err)
	}
	log.Printf("warmup: populated %d keys in %v", *keys, time.Since(warmupStart))

	start := time.Now()
	if err := d.Replay(ctx, src, *workers, time.Second, 1.0); err != nil {
		log.Fatalf("client-bench: replay: %v", err)
	}
	elapsed := time.Since(start)

	ops := src.opsIssued()
	fmt.Printf("workers=%d keys=%d dur=%v seed=%d\n", *workers, *keys, elapsed, *seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), src.reads, src.writes)
	fmt.Printf("in-flight at end=%d\n", client.InFlight())
}

// buildClient wires an rpc.Client either against remote HTTP stubs, or
// (when no addresses are given) a single in-process shard and backing
// store for a zero-dependency demo run.
func buildClient(cacheAddresses, dbAddress, fill string) (*rpc.Client, func()) {
	if cacheAddresses != "" && dbAddress != "" {
		var shards []transport.CacheStub
		for _, addr := range splitNonEmpty(cacheAddresses) {
			shards = append(shards, transport.NewHTTPCacheStub(addr))
		}
		db := transport.NewHTTPDBStub(dbAddress)
		return rpc.New(rpc.Config{CacheStubs: shards, DB: db}), func() {}
	}

	log.Printf("client-bench: no -cache-addresses/-db-address, running an in-process demo")

	fillMode := cacheserver.ClientDriven
	var store *dbstore.Store
	var load cacheserver.Loader
	if fill == "server" {
		fillMode = cacheserver.ServerDriven
		load = func(ctx context.Context, key string) ([]byte, bool, error) {
			resp, err := store.DBGet(ctx, transport.DBGetRequest{Key: key})
			return resp.Value, resp.Found, err
		}
	}

	c := slabengine.New[string, []byte](slabengine.Options[string, []byte]{Capacity: 1_000_000})
	h := cacheserver.New(slab.New(c), fillMode, load)

	trk, err := tracker.New(tracker.KindMinSketch, 1_000_000, nil)
	if err != nil {
		log.Fatalf("client-bench: %v", err)
	}
	store = dbstore.New(dbstore.Options{
		Tracker: trk,
		Costs:   freshness.Costs{CI: 10, CU: 46},
		Shards:  []transport.CacheStub{h},
		Metrics: pmet.NewFreshnessAdapter(nil, "freshcache", "clientbench", nil),
	})

	client := rpc.New(rpc.Config{
		CacheStubs: []transport.CacheStub{h},
		DB:         store,
		Tracker:    trk,
	})
	return client, func() { _ = c.Close() }
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// zipfSource generates a synthetic read/write trace over a fixed
// keyspace, sized so its total op count runs for roughly duration at
// an assumed ~50k ops/s in total across all worker lanes; it satisfies
// driver.Source.
type zipfSource struct {
	rng       *rand.Rand
	zipf      *rand.Zipf
	readPct   int
	valueSize int
	numOps    int
	numKeys   int

	i             int
	reads, writes int64
}

func newZipfSource(numKeys, readPct, valueSize int, duration time.Duration, seed int64, zipfS, zipfV float64) *zipfSource {
	rng := rand.New(rand.NewSource(seed))
	const assumedOpsPerSec = 50_000
	numOps := int(duration.Seconds() * assumedOpsPerSec)
	if numOps < 1 {
		numOps = 1
	}
	return &zipfSource{
		rng:       rng,
		zipf:      rand.NewZipf(rng, zipfS, zipfV, uint64(numKeys-1)),
		readPct:   readPct,
		valueSize: valueSize,
		numOps:    numOps,
		numKeys:   numKeys,
	}
}

func (s *zipfSource) key(n uint64) string { return "k:" + strconv.FormatUint(n, 10) }

func (s *zipfSource) valueFor(key string) []byte {
	v := make([]byte, s.valueSize)
	_, _ = s.rng.Read(v)
	return v
}

func (s *zipfSource) Next() (driver.Record, bool) {
	if s.i >= s.numOps {
		return driver.Record{}, false
	}
	s.i++

	k := s.key(s.zipf.Uint64())
	isWrite := int(s.rng.Int31n(100)) >= s.readPct
	if isWrite {
		s.writes++
	} else {
		s.reads++
	}
	return driver.Record{
		Timestamp: time.Unix(0, int64(s.i)*int64(time.Microsecond)),
		Key:       k,
		ValueSize: s.valueSize,
		IsWrite:   isWrite,
	}, true
}

func (s *zipfSource) Keys() []string {
	keys := make([]string, s.numKeys)
	for i := 0; i < s.numKeys; i++ {
		keys[i] = s.key(uint64(i))
	}
	return keys
}

func (s *zipfSource) opsIssued() int64 { return s.reads + s.writes }
