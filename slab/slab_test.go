package slab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avkuznetsov/freshcache/internal/slabengine"
)

func newTestSlab(t *testing.T, loader func(context.Context, string) ([]byte, error)) Slab {
	t.Helper()
	c := slabengine.New[string, []byte](slabengine.Options[string, []byte]{
		Capacity: 64,
		Loader:   loader,
	})
	t.Cleanup(func() { _ = c.Close() })
	return New(c)
}

func TestSlab_SetGetDelete(t *testing.T) {
	t.Parallel()

	s := newTestSlab(t, nil)
	s.Set("k", []byte("v"), 0)

	got, ok := s.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v, want v, true", got, ok)
	}

	if !s.Delete("k") {
		t.Fatal("Delete returned false for present key")
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("key present after Delete")
	}
}

// ttlSeconds <= 0 must mean "never expire" unambiguously, per spec.md
// §9's open question resolution.
func TestSlab_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	s := newTestSlab(t, nil)
	s.Set("k", []byte("v"), 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Get("k"); !ok {
		t.Fatal("zero-ttl entry expired, want never-expire semantics")
	}
}

func TestSlab_ReplaceIfPresent(t *testing.T) {
	t.Parallel()

	s := newTestSlab(t, nil)
	if s.ReplaceIfPresent("absent", []byte("v")) {
		t.Fatal("ReplaceIfPresent on absent key returned true")
	}

	s.Set("k", []byte("v1"), 0)
	if !s.ReplaceIfPresent("k", []byte("v2")) {
		t.Fatal("ReplaceIfPresent on present key returned false")
	}
	got, _ := s.Get("k")
	if string(got) != "v2" {
		t.Fatalf("Get after ReplaceIfPresent = %q, want v2", got)
	}
}

func TestSlab_GetOrLoad(t *testing.T) {
	t.Parallel()

	calls := 0
	s := newTestSlab(t, func(_ context.Context, key string) ([]byte, error) {
		calls++
		return []byte("loaded:" + key), nil
	})

	got, err := s.GetOrLoad(context.Background(), "x")
	if err != nil {
		t.Fatalf("GetOrLoad error: %v", err)
	}
	if string(got) != "loaded:x" {
		t.Fatalf("GetOrLoad = %q, want loaded:x", got)
	}

	got2, err := s.GetOrLoad(context.Background(), "x")
	if err != nil {
		t.Fatalf("GetOrLoad second call error: %v", err)
	}
	if string(got2) != "loaded:x" || calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}
}

func TestSlab_GetOrLoad_NoLoaderConfigured(t *testing.T) {
	t.Parallel()

	s := newTestSlab(t, nil)
	_, err := s.GetOrLoad(context.Background(), "x")
	if !errors.Is(err, slabengine.ErrNoLoader) {
		t.Fatalf("err = %v, want ErrNoLoader", err)
	}
}
