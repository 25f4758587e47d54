// Command dbserver runs a dbstore.Store behind an HTTP listener: the
// authoritative backing store plus server-side freshness-policy
// evaluation, fanning out to one or more cache shards over HTTP.
//
// Grounded on torua/cmd/node/main.go's flag/signal/graceful-shutdown
// shape; the tracker/cost/mode flags mirror the parameters
// original_source/cache/client/src/policy.hpp exposes as constructor
// arguments.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avkuznetsov/freshcache/dbstore"
	"github.com/avkuznetsov/freshcache/freshness"
	pmet "github.com/avkuznetsov/freshcache/metrics/prom"
	"github.com/avkuznetsov/freshcache/tracker"
	"github.com/avkuznetsov/freshcache/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		listen         = flag.String("listen", ":9091", "address to serve the backing-store RPCs on")
		cacheAddresses = flag.String("cache-addresses", "", "comma-separated cache shard base URLs")
		policyMode     = flag.String("policy-mode", "adaptive", "freshness mode: adaptive | ttl_only | invalidate_always | update_always")
		trackerKind    = flag.String("tracker-kind", "min_sketch", "EW tracker: exact | every_key | min_sketch | min_sketch_conservative | topk | topk_sample | oracle")
		numKeys        = flag.Int("num-keys", 1_000_000, "expected distinct key cardinality, sized for the tracker")
		ci             = flag.Float64("ci", 10, "invalidate cost constant C_I")
		cu             = flag.Float64("cu", 46, "update cost constant C_U")
		fanoutAsync    = flag.Bool("fanout-async", true, "fan freshness actions out to cache shards in the background")
		maxInFlight    = flag.Int64("max-in-flight", 1000, "in-flight request bound DBGetLoad reports against")
	)
	flag.Parse()

	mode, err := parseMode(*policyMode)
	if err != nil {
		log.Fatalf("dbserver: %v", err)
	}

	var trk tracker.Tracker
	if mode == freshness.Adaptive {
		trk, err = tracker.New(tracker.Kind(*trackerKind), *numKeys, nil)
		if err != nil {
			log.Fatalf("dbserver: %v", err)
		}
	}

	var shards []transport.CacheStub
	for _, addr := range splitNonEmpty(*cacheAddresses) {
		shards = append(shards, transport.NewHTTPCacheStub(addr))
	}
	if len(shards) == 0 {
		log.Printf("dbserver: no -cache-addresses given, writes will not fan out")
	}

	metrics := pmet.NewFreshnessAdapter(nil, "freshcache", "dbstore", nil)

	store := dbstore.New(dbstore.Options{
		Tracker:     trk,
		Costs:       freshness.Costs{CI: *ci, CU: *cu},
		Mode:        mode,
		Metrics:     metrics,
		Shards:      shards,
		FanoutAsync: *fanoutAsync,
		MaxInFlight: *maxInFlight,
	})

	mux := http.NewServeMux()
	mux.Handle("/db/", transport.NewDBHTTPHandler(store))
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
		log.Printf("dbserver: listening on %s (mode=%s tracker=%s shards=%d)", *listen, *policyMode, *trackerKind, len(shards))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("dbserver: listen: %v", err)
		}
	}()

	reportDone := make(chan struct{})
	if trk != nil {
		go reportTrackerStorage(trk, metrics, reportDone)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	close(reportDone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("dbserver: shutdown error: %v", err)
	}
	log.Println("dbserver: stopped")
}

// reportTrackerStorage periodically republishes the tracker's
// self-reported memory footprint (spec.md §4.1 "storage_bytes() ->
// int: self-reported memory footprint (for evaluation)") until done
// is closed.
func reportTrackerStorage(trk tracker.Tracker, metrics *pmet.FreshnessAdapter, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.SetSketchBytes(trk.StorageBytes())
		case <-done:
			return
		}
	}
}

func parseMode(s string) (freshness.Mode, error) {
	switch s {
	case "adaptive":
		return freshness.Adaptive, nil
	case "ttl_only":
		return freshness.TTLOnly, nil
	case "invalidate_always":
		return freshness.InvalidateAlways, nil
	case "update_always":
		return freshness.UpdateAlways, nil
	default:
		return 0, errUnknownMode(s)
	}
}

type errUnknownMode string

func (e errUnknownMode) Error() string {
	return "unknown -policy-mode " + string(e) + " (use adaptive, ttl_only, invalidate_always, or update_always)"
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
