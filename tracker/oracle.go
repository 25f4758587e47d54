package tracker

import "sync/atomic"

// FutureWrites supplies future-knowledge lookups for the Oracle
// tracker: given a key and the index of the current operation in the
// replayed trace, it reports how many writes to key occur before the
// next read of key. Callers that never construct a KindOracle tracker
// never need to implement this.
//
// Grounded on original_source/cache/client/src/policy.hpp's
// OracleTracker, which is given the full trace ahead of time and looks
// ahead rather than estimating online.
type FutureWrites interface {
	// WritesBeforeNextRead returns the number of writes to key that
	// occur strictly after opIndex and strictly before key's next read,
	// and true if a next read exists. If key is never read again, it
	// returns (0, false).
	WritesBeforeNextRead(key string, opIndex int64) (int64, bool)
}

// Oracle reports the true EW by consulting FutureWrites instead of
// estimating from past observations. It exists as an upper-bound
// baseline for evaluating the other tracker variants (spec.md §4.1
// "Oracle"), not as a deployable tracker: it requires knowledge a live
// system cannot have.
type Oracle struct {
	future FutureWrites
	opIdx  atomic.Int64
}

// NewOracle constructs an oracle tracker backed by future. future may
// be nil only if EW is never called.
func NewOracle(future FutureWrites) *Oracle {
	return &Oracle{future: future}
}

// RecordWrite and RecordRead advance the oracle's notion of the
// current operation index so EW can ask "from here forward"; the
// oracle never folds observations into an estimate since it always
// consults future directly.
func (o *Oracle) RecordWrite(string) { o.opIdx.Add(1) }
func (o *Oracle) RecordRead(string)  { o.opIdx.Add(1) }

// EW returns the true number of writes to key before its next read, or
// ColdEW if key is never read again.
func (o *Oracle) EW(key string) float64 {
	n, ok := o.future.WritesBeforeNextRead(key, o.opIdx.Load())
	if !ok {
		return ColdEW
	}
	return float64(n)
}

// StorageBytes is zero: the oracle holds no per-key state of its own.
func (o *Oracle) StorageBytes() int { return 0 }

// Reconfigure is a no-op; the oracle has no sized internal structure.
func (o *Oracle) Reconfigure(int) {}

var _ Tracker = (*Oracle)(nil)
