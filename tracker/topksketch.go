package tracker

import (
	"sync"

	"github.com/avkuznetsov/freshcache/internal/sketch"
	"github.com/avkuznetsov/freshcache/internal/util"
)

// TopKSketch estimates EW by keeping exact read/write counts for the K
// heaviest-hitting keys and falling back to a count-min sketch (or, in
// sample mode, treating the sketch estimate as evidence) for the rest.
//
// Grounded on original_source/cache/client/src/policy.hpp's
// TopKSketchTracker/TopKSketchSampleTracker, built on internal/sketch's
// TopK translation of the original's TopKSketch.
type TopKSketch struct {
	mu     sync.Mutex
	writes *sketch.TopK
	reads  *sketch.TopK
	sample bool
}

// topKSlots is the number of exact heavy-hitter slots kept per side,
// per spec.md §3 "Top-K heavy-hitter sketch": K = ceil(sqrt(|keys|)),
// floored at 16.
func topKSlots(numKeys int) int {
	return util.TopKCapacity(numKeys)
}

// NewTopKSketch builds a top-K tracker sized for numKeys distinct keys.
// sample selects TopKSketchSample semantics: cold keys fall back to the
// sketch's estimate rather than reporting ColdEW.
func NewTopKSketch(numKeys int, sample bool) *TopKSketch {
	k := topKSlots(numKeys)
	return &TopKSketch{
		writes: sketch.NewTopK(k, numKeys, false),
		reads:  sketch.NewTopK(k, numKeys, false),
		sample: sample,
	}
}

func (t *TopKSketch) RecordWrite(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes.Increment(key)
}

func (t *TopKSketch) RecordRead(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads.Increment(key)
}

// EW returns writes/reads for key using exact top-K counts where
// available. In non-sample mode, a key outside the read top-K reports
// ColdEW since no exact read evidence exists, and a key outside the
// write top-K counts zero writes. In sample mode, both sides fall back
// to the sketch's estimate.
func (t *TopKSketch) EW(key string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, rok := t.reads.GetCount(key)
	if !rok {
		if !t.sample {
			return ColdEW
		}
		r = t.reads.Estimate(key)
		if r == 0 {
			return ColdEW
		}
	}

	w, wok := t.writes.GetCount(key)
	if !wok && t.sample {
		w = t.writes.Estimate(key)
	}

	return float64(w) / float64(r)
}

func (t *TopKSketch) StorageBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes.StorageBytes() + t.reads.StorageBytes()
}

// Reconfigure rebuilds both top-K trackers for a new expected
// cardinality, discarding all counts.
func (t *TopKSketch) Reconfigure(expectedNumKeys int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := topKSlots(expectedNumKeys)
	t.writes = sketch.NewTopK(k, expectedNumKeys, false)
	t.reads = sketch.NewTopK(k, expectedNumKeys, false)
}

var _ Tracker = (*TopKSketch)(nil)
