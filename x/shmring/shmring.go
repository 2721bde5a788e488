// Package shmring is a lock-free single-producer single-consumer ring.
//
// Exactly one goroutine may call the producer methods (TryWrite, WriteFrom)
// and exactly one the consumer methods (TryRead, ReadInto, Discard). Space,
// Available and Cap may be called from anywhere.
//
// Readable and Writable are coalesced edge notifications: a token is posted
// when the ring goes from empty to non-empty (resp. full to non-full). A
// consumer woken by Readable must drain until TryRead reports false before
// waiting again.
package shmring

import "sync/atomic"

// Ring is a bounded SPSC queue of T.
type Ring[T any] struct {
	buf  []T
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{}
	writable chan struct{}
}

// New allocates a ring of the given power-of-two size (>= 2).
func New[T any](size int) *Ring[T] {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring[T]{
		buf:      make([]T, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring[T]) size() uint32 { return uint32(len(r.buf)) }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Space returns the number of free slots.
func (r *Ring[T]) Space() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(r.size() - (wr - rd))
}

// Available returns the number of queued items.
func (r *Ring[T]) Available() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(wr - rd)
}

// ---- producer ----

// TryWrite enqueues v. It never blocks and returns false when the ring is
// full.
func (r *Ring[T]) TryWrite(v T) bool {
	rd := r.rd.Load()
	wr := r.wr.Load()
	used := wr - rd
	if used >= r.size() {
		return false
	}
	r.buf[wr&r.mask] = v
	r.wr.Store(wr + 1) // release
	r.afterWrite(wr)
	return true
}

// WriteFrom enqueues as many items from src as fit and returns the count.
func (r *Ring[T]) WriteFrom(src []T) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	used := wr - rd
	n = int(r.size() - used)
	if n <= 0 {
		return 0
	}
	if len(src) < n {
		n = len(src)
	}

	idx := wr & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n))
	r.afterWrite(wr)
	return n
}

// ---- consumer ----

// TryRead dequeues one item. ok is false when the ring is empty.
func (r *Ring[T]) TryRead() (v T, ok bool) {
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	if wr == rd {
		return v, false
	}
	idx := rd & r.mask
	v = r.buf[idx]
	var zero T
	r.buf[idx] = zero
	r.rd.Store(rd + 1)
	r.afterRead(rd)
	return v, true
}

// ReadInto dequeues up to len(dst) items and returns the count.
func (r *Ring[T]) ReadInto(dst []T) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	n = int(wr - rd)
	if n <= 0 {
		return 0
	}
	if len(dst) < n {
		n = len(dst)
	}

	idx := rd & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n))
	r.afterRead(rd)
	return n
}

// Discard drops everything queued at the time of the call and returns the
// number of items dropped. Items written concurrently may survive.
func (r *Ring[T]) Discard() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	if wr == rd {
		return 0
	}
	r.rd.Store(wr)
	r.afterRead(rd)
	return int(wr - rd)
}

// Readable posts a token on the empty to non-empty edge.
func (r *Ring[T]) Readable() <-chan struct{} { return r.readable }

// Writable posts a token on the full to non-full edge.
func (r *Ring[T]) Writable() <-chan struct{} { return r.writable }

// afterWrite signals the consumer if it may have observed the ring empty at
// the old write index. The index is re-read after publishing so a consumer
// that checked between our loads and our store is not missed.
func (r *Ring[T]) afterWrite(oldWr uint32) {
	if r.rd.Load() == oldWr {
		notify(r.readable)
	}
}

// afterRead is the consumer-side mirror of afterWrite.
func (r *Ring[T]) afterRead(oldRd uint32) {
	if r.wr.Load()-oldRd >= r.size() {
		notify(r.writable)
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
