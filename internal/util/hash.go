// Package util contains internal helpers shared by the sharding,
// routing, and sketch-sizing concerns of this repository: FNV-1a
// hashing, a bit-mixing finalizer, count-min/top-K capacity math, and
// (in sharding.go) cache-line padding and power-of-two shard math.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"fmt"
	"math"
)

// Fnv64a hashes common key types using 64-bit FNV-1a.
// Supported: string, []byte, [16|32|64]byte, all int/uint widths, uintptr, fmt.Stringer.
// For other key types, either convert the key to string or supply a custom hasher upstream.
// Panicking on unsupported types is deliberate to avoid silently poor hashing.
func Fnv64a[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return fnv64aFromBytes([]byte(v))
	case []byte:
		return fnv64aFromBytes(v)
	case [16]byte:
		return fnv64aFromBytes(v[:])
	case [32]byte:
		return fnv64aFromBytes(v[:])
	case [64]byte:
		return fnv64aFromBytes(v[:])

	// Integer-like keys: hash little-endian bytes of the value.
	case uint8:
		return fnv64aFromUint64(uint64(v))
	case uint16:
		return fnv64aFromUint64(uint64(v))
	case uint32:
		return fnv64aFromUint64(uint64(v))
	case uint64:
		return fnv64aFromUint64(v)
	case uint:
		return fnv64aFromUint64(uint64(v))
	case uintptr:
		return fnv64aFromUint64(uint64(v))
	case int8:
		return fnv64aFromUint64(uint64(uint8(v)))
	case int16:
		return fnv64aFromUint64(uint64(uint16(v)))
	case int32:
		return fnv64aFromUint64(uint64(uint32(v)))
	case int64:
		return fnv64aFromUint64(uint64(v))
	case int:
		return fnv64aFromUint64(uint64(v))

	// Fallback for pseudo-keys via String() (avoid if you can).
	case fmt.Stringer:
		return fnv64aFromBytes([]byte(v.String()))
	default:
		panic(fmt.Sprintf("util.Fnv64a: unsupported key type %T; convert key to string or provide a custom hasher", k))
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnv64aFromBytes(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

func fnv64aFromUint64(u uint64) uint64 {
	// Hash the 8 little-endian bytes of u without allocating.
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}

// Mix64 is a splitmix64-style finalizer that decorrelates values derived
// from a single 64-bit hash, e.g. a count-min sketch's per-row hashes
// (internal/sketch.CountMin XORs Mix64(keyHash^rowSeed) per row) or a
// shard/lane index derived from a key hash (RouteIndex below). Grounded
// on original_source/cache/client/src/policy.hpp's CountMinSketch row
// hashing, which applies the same finalizer after XORing in a row seed.
func Mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// RouteIndex picks a destination in [0, n) for key k, Mix64-ing the FNV
// hash before reducing so keys that differ only in their low bits (the
// bits FNV-1a mixes last, and so weakest) still spread across
// destinations. Used to route a key to a cache shard (rpc.Client,
// dbstore.Store) or a replay lane (driver.Driver) — the same bit-mixing
// concern internal/sketch relies on for decorrelating sketch rows.
func RouteIndex[K comparable](k K, n int) int {
	return ShardIndex(Mix64(Fnv64a(k)), n)
}

// SketchDims sizes a count-min sketch for an expected key cardinality
// numKeys (clamped to >= 1): width = ceil(e/epsilon), depth =
// ceil(ln(1/epsilon)), with epsilon = 1/sqrt(numKeys), exactly as
// spec.md §3 "Sketch" and original_source/cache/client/src/policy.hpp's
// CountMinSketch constructor define.
func SketchDims(numKeys int) (width, depth int) {
	if numKeys < 1 {
		numKeys = 1
	}
	eps := 1.0 / math.Sqrt(float64(numKeys))
	width = int(math.Ceil(math.E / eps))
	depth = int(math.Ceil(math.Log(1 / eps)))
	if width < 1 {
		width = 1
	}
	if depth < 1 {
		depth = 1
	}
	return width, depth
}

// TopKCapacity sizes the number of exact heavy-hitter slots a top-K
// tracker keeps for an expected key cardinality numKeys, per spec.md §3
// "Top-K heavy-hitter sketch": K = ceil(sqrt(|keys|)), floored at 16 so
// small deployments still get a useful exact-count window.
func TopKCapacity(numKeys int) int {
	if numKeys < 1 {
		numKeys = 1
	}
	k := int(math.Ceil(math.Sqrt(float64(numKeys))))
	if k < 16 {
		k = 16
	}
	return k
}
