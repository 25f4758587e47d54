// Package tracker implements the EW (expected-writes-between-reads)
// estimator family of spec.md §4.1: online per-key read/write counters,
// from an exact map up through bounded-memory sketches, behind one
// uniform interface.
//
// Grounded on original_source/cache/client/src/policy.hpp's Tracker
// hierarchy (virtual write/read/get_ew/get_storage_overhead/update) and
// policy.cpp's per-variant bodies; the Go translation replaces virtual
// dispatch with one interface and one struct per variant, in the spirit
// of the teacher's policy.Policy[K,V] factory pattern
// (_examples/IvanBrykalov-shardcache/policy/policy.go) but specialized
// to tracker behavior rather than eviction behavior.
package tracker

// ColdEW is the sentinel EW value meaning "no evidence for this key, or
// never read" — spec.md §4.1 "ew(k, op_idx?) → float ... sentinel -1".
const ColdEW = -1.0

// Tracker is the uniform contract every EW estimator satisfies.
// Implementations never error: a degraded estimate is a feature, not a
// fault (spec.md §4.1 "Failure semantics").
//
// All methods are safe for concurrent use. Per spec.md §4.1
// "Concurrency": RecordRead/RecordWrite/Reconfigure behave as writers,
// EW/StorageBytes behave as readers, against a single per-tracker lock
// (or, for sketch variants, an equivalent consistent-snapshot guarantee).
type Tracker interface {
	// RecordRead observes a read of key.
	RecordRead(key string)

	// RecordWrite observes a write of key.
	RecordWrite(key string)

	// EW returns the current expected-writes-between-reads estimate for
	// key, or ColdEW if there is no evidence yet (key never read, or
	// never observed at all).
	EW(key string) float64

	// StorageBytes self-reports the tracker's current memory footprint,
	// for evaluation/export only.
	StorageBytes() int

	// Reconfigure rebuilds internal structures sized for a new target
	// key cardinality. Existing counts are discarded — the same
	// trade-off the original sketches make on resize
	// (original_source's `Tracker::update`).
	Reconfigure(expectedNumKeys int)
}

// Kind names one of the tracker variants spec.md §4.1 enumerates.
type Kind string

const (
	KindExactPerKey           Kind = "exact"
	KindEveryKeySampled       Kind = "every_key"
	KindMinSketch             Kind = "min_sketch"
	KindMinSketchConservative Kind = "min_sketch_conservative"
	KindTopKSketch            Kind = "topk"
	KindTopKSketchSample      Kind = "topk_sample"
	KindOracle                Kind = "oracle"
)

// New constructs the tracker variant named by kind, sized for an
// expected numKeys distinct keys. For KindOracle, future must supply
// future-knowledge lookups (spec.md §4.1 "Oracle") and may be nil only
// if the caller never calls EW on the result.
func New(kind Kind, numKeys int, future FutureWrites) (Tracker, error) {
	switch kind {
	case KindExactPerKey:
		return NewExactPerKey(), nil
	case KindEveryKeySampled:
		return NewEveryKeySampled(), nil
	case KindMinSketch:
		return NewMinSketch(numKeys, false), nil
	case KindMinSketchConservative:
		return NewMinSketch(numKeys, true), nil
	case KindTopKSketch:
		return NewTopKSketch(numKeys, false), nil
	case KindTopKSketchSample:
		return NewTopKSketch(numKeys, true), nil
	case KindOracle:
		return NewOracle(future), nil
	default:
		return nil, ErrUnknownKind{Kind: kind}
	}
}

// ErrUnknownKind is returned by New for an unrecognized Kind.
type ErrUnknownKind struct{ Kind Kind }

func (e ErrUnknownKind) Error() string {
	return "tracker: unknown kind " + string(e.Kind)
}
