package sketch

import "testing"

// Mirrors spec.md §8 scenario 2: K=2, stream a,a,a,b,b,c.
func TestTopK_Admission(t *testing.T) {
	t.Parallel()

	tk := NewTopK(2, 10, false)
	stream := []string{"a", "a", "a", "b", "b", "c"}
	for _, k := range stream {
		tk.Increment(k)
	}

	if c, ok := tk.GetCount("a"); !ok || c != 3 {
		t.Fatalf("a: got count=%d ok=%v, want 3,true", c, ok)
	}
	if c, ok := tk.GetCount("b"); !ok || c != 2 {
		t.Fatalf("b: got count=%d ok=%v, want 2,true", c, ok)
	}
	if _, ok := tk.GetCount("c"); ok {
		t.Fatal("c must not be admitted into the top-K")
	}
	if tk.Len() != 2 {
		t.Fatalf("top-K size = %d, want 2", tk.Len())
	}
}

func TestTopK_SizeNeverExceedsK(t *testing.T) {
	t.Parallel()

	const k = 4
	tk := NewTopK(k, 1000, false)
	for i := 0; i < 200; i++ {
		tk.Increment(string(rune('a' + i%26)))
		if tk.Len() > k {
			t.Fatalf("top-K size %d exceeds K=%d", tk.Len(), k)
		}
	}
}

func TestTopK_HeapTopIsLowerBoundOnAdmitted(t *testing.T) {
	t.Parallel()

	tk := NewTopK(3, 100, false)
	for _, k := range []string{"a", "a", "a", "a", "b", "b", "b", "c", "c", "d"} {
		tk.Increment(k)
	}
	min := tk.h[0].count
	for _, e := range tk.h {
		if e.count < min {
			t.Fatalf("heap top %d is not a lower bound on entry %q=%d", min, e.key, e.count)
		}
	}
}
