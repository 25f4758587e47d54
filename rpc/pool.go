package rpc

import (
	"sync"
	"time"
)

// callKind names one of the client's RPC kinds, stored on the pooled
// call object as bookkeeping; latency logging does not use it.
type callKind int

const (
	kindGet callKind = iota
	kindSet
	kindInvalidate
	kindUpdate
	kindNonKeyed
)

// asyncCall is the in-flight record spec.md §3 calls an AsyncCall:
// {call_kind, key?, start_ts}. Pool acquire yields a cleared-state
// object; release clears fields before returning it to the pool
// (spec.md §9 "Object pools" contract).
type asyncCall struct {
	kind      callKind
	key       string
	startedAt time.Time
}

// callPool is a per-client free list of asyncCall objects, amortizing
// allocation for high-churn call issue (spec.md §9 "Object pools").
type callPool struct {
	pool sync.Pool
}

func (p *callPool) acquire(kind callKind, key string) *asyncCall {
	v := p.pool.Get()
	call, ok := v.(*asyncCall)
	if !ok {
		call = &asyncCall{}
	}
	call.kind = kind
	call.key = key
	call.startedAt = time.Now()
	return call
}

func (p *callPool) release(call *asyncCall) {
	call.kind = 0
	call.key = ""
	call.startedAt = time.Time{}
	p.pool.Put(call)
}
