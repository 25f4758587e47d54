// Package rpc implements the async cache/DB RPC dispatch fabric of
// spec.md §4.3: it issues reads, writes, and freshness actions across
// sharded cache stubs and a backing-store stub, demultiplexes
// completions into per-call futures, and backpressures load.
//
// Grounded on original_source/cache/client/src/client.hpp's
// AsyncClientCall/CompletionQueue/condition-variable backpressure
// design, translated into goroutines, channels, and
// golang.org/x/sync/semaphore — the idiomatic Go shape for "one
// dedicated completion thread draining a queue, MAX_CONCURRENT_RPCS
// gating issue" without introducing a completion-queue type at all:
// each call's own goroutine plays the role the original's single
// completion thread played for that call.
package rpc

import "context"

// Future is a language-neutral awaitable of a value, resolved exactly
// once by the goroutine carrying out the call (spec.md §4.3 "Futures").
// Synchronous callers just block on Wait.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve satisfies the future exactly once; spec.md §8 invariant 4.
func (f *Future[T]) resolve(v T, err error) {
	f.val = v
	f.err = err
	close(f.done)
}

// Wait blocks until the future resolves or ctx is done, whichever
// comes first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
