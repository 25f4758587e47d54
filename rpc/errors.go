package rpc

import "errors"

// ErrCacheMiss is resolved on a cache Get that found nothing. Per
// spec.md §7 it is not an error in the ordinary sense — it is the
// look-aside trigger — but the Future/error channel is the natural
// place to surface it since callers already branch on err.
var ErrCacheMiss = errors.New("rpc: cache miss")

// ErrShuttingDown is resolved on every in-flight future when Close is
// called, per spec.md §4.3 "Cancellation": in-flight promises receive
// a cancelled error instead of hanging forever.
var ErrShuttingDown = errors.New("rpc: client shutting down")
