package tracker

import (
	"sync"

	"github.com/avkuznetsov/freshcache/internal/sketch"
)

// MinSketch estimates EW from two bounded-memory count-min sketches —
// one accumulating writes, one accumulating reads — trading per-key
// exactness for O(numKeys) fixed memory.
//
// Grounded on original_source/cache/client/src/policy.cpp's
// SketchesTracker/MinSketchTracker: get_ew = write_count/read_count,
// ColdEW if read_count is zero. The conservative flag selects
// conservative-update sketches for both sides (spec.md §4.1
// "MinSketchConservative").
type MinSketch struct {
	mu           sync.Mutex
	writes       *sketch.CountMin
	reads        *sketch.CountMin
	conservative bool
}

// NewMinSketch builds a min-sketch tracker sized for numKeys distinct
// keys; conservative selects conservative-update semantics.
func NewMinSketch(numKeys int, conservative bool) *MinSketch {
	return &MinSketch{
		writes:       sketch.NewCountMin(numKeys, conservative),
		reads:        sketch.NewCountMin(numKeys, conservative),
		conservative: conservative,
	}
}

func (t *MinSketch) RecordWrite(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes.Increment(sketch.HashKey(key), 1)
}

func (t *MinSketch) RecordRead(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads.Increment(sketch.HashKey(key), 1)
}

// EW returns writes/reads for key, or ColdEW if the read sketch has
// never seen key.
func (t *MinSketch) EW(key string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	kh := sketch.HashKey(key)
	r := t.reads.Estimate(kh)
	if r == 0 {
		return ColdEW
	}
	w := t.writes.Estimate(kh)
	return float64(w) / float64(r)
}

func (t *MinSketch) StorageBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes.StorageBytes() + t.reads.StorageBytes()
}

// Reconfigure rebuilds both sketches for a new expected cardinality,
// discarding all counts (original_source's Tracker::update contract).
func (t *MinSketch) Reconfigure(expectedNumKeys int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = sketch.NewCountMin(expectedNumKeys, t.conservative)
	t.reads = sketch.NewCountMin(expectedNumKeys, t.conservative)
}

var _ Tracker = (*MinSketch)(nil)
