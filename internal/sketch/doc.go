// Package sketch implements the bounded-memory counting primitives the
// tracker package builds its EW (expected-writes-between-reads)
// estimators on: a count-min sketch and a top-K heavy-hitter map.
//
// Both are grounded on original_source/cache/client/src/policy.hpp's
// CountMinSketch/TopKSketch, translated from fixed-size C++ vectors into
// a flat []uint32 grid and a container/heap-backed min-heap respectively.
package sketch
