// Command cacheserver runs a cacheserver.Handler for one shard behind
// an HTTP listener, exposing the seven cache RPCs plus a Prometheus
// /metrics endpoint.
//
// Grounded on torua/cmd/node/main.go's flag/signal/graceful-shutdown
// shape and the teacher's cmd/bench/main.go for the
// pprof/Prometheus-on-DefaultServeMux style.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avkuznetsov/freshcache/cacheserver"
	"github.com/avkuznetsov/freshcache/internal/slabengine"
	pmet "github.com/avkuznetsov/freshcache/metrics/prom"
	"github.com/avkuznetsov/freshcache/slab"
	"github.com/avkuznetsov/freshcache/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		listen   = flag.String("listen", ":9090", "address to serve the cache RPCs on")
		capacity = flag.Int("cap", 100_000, "shard capacity (entries)")
		ttl      = flag.Duration("ttl", 0, "default entry TTL (0 = never expire)")
		fill     = flag.String("fill", "client", "fill mode on a miss: client | server")
		dbAddr   = flag.String("db-address", "", "backing-store base URL, required when -fill=server")
		shard    = flag.String("shard-id", "0", "shard identifier, used as a Prometheus const label")
	)
	flag.Parse()

	fillMode, load := cacheserver.ClientDriven, cacheserver.Loader(nil)
	switch *fill {
	case "client":
	case "server":
		fillMode = cacheserver.ServerDriven
		if *dbAddr == "" {
			log.Fatalf("cacheserver: -fill=server requires -db-address")
		}
		db := transport.NewHTTPDBStub(*dbAddr)
		load = func(ctx context.Context, key string) ([]byte, bool, error) {
			resp, err := db.DBGet(ctx, transport.DBGetRequest{Key: key})
			return resp.Value, resp.Found, err
		}
	default:
		log.Fatalf("cacheserver: unknown -fill %q (use client or server)", *fill)
	}

	sMetrics := pmet.New(nil, "freshcache", "shard", prometheus.Labels{"shard": *shard})
	fMetrics := pmet.NewFreshnessAdapter(nil, "freshcache", "shard", prometheus.Labels{"shard": *shard})

	c := slabengine.New[string, []byte](slabengine.Options[string, []byte]{
		Capacity:   *capacity,
		Metrics:    sMetrics,
		DefaultTTL: *ttl,
	})
	defer func() { _ = c.Close() }()

	handler := cacheserver.New(slab.New(c), fillMode, load, cacheserver.WithMetrics(fMetrics))
	// Entries stored through the cache RPCs never consult the engine's
	// DefaultTTL, so -ttl also seeds the handler's default TTL for fills.
	_, _ = handler.CacheSetTTL(context.Background(), transport.CacheSetTTLRequest{TTL: int64(ttl.Seconds())})

	mux := http.NewServeMux()
	wire := transport.NewCacheHTTPHandler(handler)
	mux.Handle("/cache/", wire)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("cacheserver[%s]: listening on %s (fill=%s)", *shard, *listen, *fill)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("cacheserver: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("cacheserver: shutdown error: %v", err)
	}
	log.Printf("cacheserver[%s]: stopped", *shard)
}
