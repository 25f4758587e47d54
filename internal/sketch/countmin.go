package sketch

import (
	"math"

	"github.com/avkuznetsov/freshcache/internal/util"
)

// CountMin is a d×w count-min sketch over uint32 counters: a fixed-size,
// probabilistic frequency table whose estimates are never smaller than
// the true count (one-sided error).
//
// Grounded on original_source/cache/client/src/policy.hpp's
// CountMinSketch: width/depth are derived from a target key cardinality
// via width = ceil(e/epsilon), depth = ceil(ln(1/delta)), with
// epsilon = delta = 1/sqrt(numKeys), exactly as spec.md §3 "Sketch"
// defines.
//
// Not safe for concurrent use; callers (tracker variants) serialize
// access with their own lock, per spec.md §4.1 "Concurrency".
type CountMin struct {
	grid         []uint32 // depth*width, row-major
	width, depth int
	seeds        []uint64
	conservative bool
}

// NewCountMin sizes a sketch for an expected key cardinality numKeys
// (must be >= 1). conservative selects the conservative-update variant
// (increment only the rows currently at the row-minimum).
func NewCountMin(numKeys int, conservative bool) *CountMin {
	width, depth := util.SketchDims(numKeys)

	seeds := make([]uint64, depth)
	for i := range seeds {
		// Distinct per-row seeds: multiples of the golden-ratio
		// constant, XORed with the row index per spec.md §4.1's
		// "stable string hash XORed with d seeds and bit-mixed".
		seeds[i] = (0x9e3779b97f4a7c15 * uint64(i+1)) ^ uint64(i)
	}

	return &CountMin{
		grid:         make([]uint32, depth*width),
		width:        width,
		depth:        depth,
		seeds:        seeds,
		conservative: conservative,
	}
}

// Width returns the sketch's row width.
func (c *CountMin) Width() int { return c.width }

// Depth returns the sketch's row count.
func (c *CountMin) Depth() int { return c.depth }

// index returns the column for key in row i, bit-mixed for distribution.
func (c *CountMin) index(keyHash uint64, row int) int {
	h := util.Mix64(keyHash ^ c.seeds[row])
	return int(h % uint64(c.width))
}

// Increment adds count (default 1 via count=1) to key's row slots. In
// the standard variant every row is incremented; in the conservative
// variant only the row(s) currently at the row-minimum are, so the
// estimate never overshoots more than necessary.
func (c *CountMin) Increment(keyHash uint64, count uint32) {
	if !c.conservative {
		for row := 0; row < c.depth; row++ {
			idx := row*c.width + c.index(keyHash, row)
			c.grid[idx] += count
		}
		return
	}

	minVal := uint32(math.MaxUint32)
	idxs := make([]int, c.depth)
	for row := 0; row < c.depth; row++ {
		idx := row*c.width + c.index(keyHash, row)
		idxs[row] = idx
		if c.grid[idx] < minVal {
			minVal = c.grid[idx]
		}
	}
	for _, idx := range idxs {
		if c.grid[idx] == minVal {
			c.grid[idx] += count
		}
	}
}

// Decrement subtracts count from every row's slot for key, floored at
// zero. Used by the top-K sketch when evicting a heavy hitter back into
// the sketch (spec.md §4.1 "Top-K heavy-hitter sketch").
func (c *CountMin) Decrement(keyHash uint64, count uint32) {
	for row := 0; row < c.depth; row++ {
		idx := row*c.width + c.index(keyHash, row)
		if c.grid[idx] < count {
			c.grid[idx] = 0
		} else {
			c.grid[idx] -= count
		}
	}
}

// Estimate returns the minimum counter across all rows for key: the
// count-min point estimate, guaranteed >= the true count.
func (c *CountMin) Estimate(keyHash uint64) uint32 {
	minVal := uint32(math.MaxUint32)
	for row := 0; row < c.depth; row++ {
		idx := row*c.width + c.index(keyHash, row)
		if c.grid[idx] < minVal {
			minVal = c.grid[idx]
		}
	}
	return minVal
}

// StorageBytes reports the sketch's self-estimated memory footprint.
func (c *CountMin) StorageBytes() int {
	return len(c.grid)*4 + len(c.seeds)*8
}

// HashKey computes the stable 64-bit FNV-1a hash of a key used to seed
// all row hashes of a sketch.
func HashKey(key string) uint64 { return util.Fnv64a(key) }
