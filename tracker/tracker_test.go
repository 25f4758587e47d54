package tracker

import "testing"

func TestNew_DispatchesAllKinds(t *testing.T) {
	t.Parallel()

	kinds := []Kind{
		KindExactPerKey,
		KindEveryKeySampled,
		KindMinSketch,
		KindMinSketchConservative,
		KindTopKSketch,
		KindTopKSketchSample,
		KindOracle,
	}
	for _, k := range kinds {
		tr, err := New(k, 100, nil)
		if err != nil {
			t.Fatalf("New(%q) error: %v", k, err)
		}
		if tr == nil {
			t.Fatalf("New(%q) returned nil tracker", k)
		}
	}
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := New(Kind("bogus"), 10, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestExactPerKey_ColdUntilBothSides(t *testing.T) {
	t.Parallel()

	tr := NewExactPerKey()
	if got := tr.EW("k"); got != ColdEW {
		t.Fatalf("EW on unseen key = %v, want ColdEW", got)
	}
	tr.RecordWrite("k")
	if got := tr.EW("k"); got != ColdEW {
		t.Fatalf("EW with writes but no reads = %v, want ColdEW", got)
	}
	tr.RecordRead("k")
	if got := tr.EW("k"); got != 1.0 {
		t.Fatalf("EW = %v, want 1.0", got)
	}
}

// Mirrors original_source/cache/client/src/policy.cpp's EveryKeyTracker
// read-folding rule (spec.md §9 Open Question on EveryKeySampled): a
// read with no writes since the last read leaves expectedWrites
// unchanged rather than folding in a zero.
func TestEveryKeySampled_ReadWithNoWritesLeavesMeanUnchanged(t *testing.T) {
	t.Parallel()

	tr := NewEveryKeySampled()
	tr.RecordWrite("k")
	tr.RecordWrite("k")
	tr.RecordRead("k") // first sample: expectedWrites = 2
	if got := tr.EW("k"); got != 2.0 {
		t.Fatalf("EW after first sample = %v, want 2.0", got)
	}

	tr.RecordRead("k") // no writes since last read: must not fold in 0
	if got := tr.EW("k"); got != 2.0 {
		t.Fatalf("EW after no-write read = %v, want unchanged 2.0", got)
	}

	tr.RecordWrite("k")
	tr.RecordRead("k") // second sample: mean of 2 and 1 => 1.5
	if got := tr.EW("k"); got != 1.5 {
		t.Fatalf("EW after second sample = %v, want 1.5", got)
	}
}

func TestEveryKeySampled_ColdBeforeFirstRead(t *testing.T) {
	t.Parallel()

	tr := NewEveryKeySampled()
	tr.RecordWrite("k")
	if got := tr.EW("k"); got != ColdEW {
		t.Fatalf("EW before any read = %v, want ColdEW", got)
	}
}

func TestMinSketch_EstimatesRatio(t *testing.T) {
	t.Parallel()

	tr := NewMinSketch(50, false)
	for i := 0; i < 4; i++ {
		tr.RecordWrite("hot")
	}
	for i := 0; i < 2; i++ {
		tr.RecordRead("hot")
	}
	if got := tr.EW("hot"); got != 2.0 {
		t.Fatalf("EW = %v, want 2.0", got)
	}
	if got := tr.EW("never-seen"); got != ColdEW {
		t.Fatalf("EW(never-seen) = %v, want ColdEW", got)
	}
}

func TestTopKSketch_ExactWithinTopK(t *testing.T) {
	t.Parallel()

	tr := NewTopKSketch(200, false)
	for i := 0; i < 5; i++ {
		tr.RecordWrite("hot")
	}
	for i := 0; i < 5; i++ {
		tr.RecordRead("hot")
	}
	if got := tr.EW("hot"); got != 1.0 {
		t.Fatalf("EW = %v, want 1.0", got)
	}
}

func TestOracle_ReportsFutureWrites(t *testing.T) {
	t.Parallel()

	tr := NewOracle(stubFuture{writes: 3, ok: true})
	if got := tr.EW("k"); got != 3.0 {
		t.Fatalf("EW = %v, want 3.0", got)
	}

	coldTr := NewOracle(stubFuture{ok: false})
	if got := coldTr.EW("k"); got != ColdEW {
		t.Fatalf("EW with no future read = %v, want ColdEW", got)
	}
}

type stubFuture struct {
	writes int64
	ok     bool
}

func (s stubFuture) WritesBeforeNextRead(string, int64) (int64, bool) {
	return s.writes, s.ok
}
