package spatial

import (
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const CacheLineSize = 64

// Padding keeps hot counters on separate cache lines.
type Padding [CacheLineSize]byte

type ringSlot[T any] struct {
	seq atomic.Uint64
	val T
}

// Ring is a bounded multi-producer single-consumer queue.
//
// Each slot carries a sequence number so a consumer never reads a slot a
// producer has claimed but not finished writing (Vyukov bounded queue).
//
// Memory layout: [Padding][head][Padding][tail][Padding][slots...]
type Ring[T any] struct {
	_    Padding
	head atomic.Uint64 // next position to claim (producers)
	_    Padding
	tail atomic.Uint64 // next position to read (consumer)
	_    Padding

	mask  uint64
	slots []ringSlot[T]
}

// NewRing creates a ring. capacity is rounded up to a power of two.
func NewRing[T any](capacity int) *Ring[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}

	r := &Ring[T]{
		mask:  uint64(size - 1),
		slots: make([]ringSlot[T], size),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

// TryPush enqueues item. It returns false when the ring is full.
// Safe for concurrent producers.
func (r *Ring[T]) TryPush(item T) bool {
	for {
		pos := r.head.Load()
		slot := &r.slots[pos&r.mask]
		diff := int64(slot.seq.Load()) - int64(pos)

		switch {
		case diff == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				slot.val = item
				slot.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			return false
		}
		// another producer claimed pos, retry with a fresh head
	}
}

// TryPop dequeues one item. Only one goroutine may consume.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T

	pos := r.tail.Load()
	slot := &r.slots[pos&r.mask]
	if int64(slot.seq.Load())-int64(pos+1) != 0 {
		return zero, false
	}

	item := slot.val
	slot.val = zero
	r.tail.Store(pos + 1)
	slot.seq.Store(pos + r.mask + 1)
	return item, true
}

// DrainTo pops up to len(buf) items into buf and returns how many were
// written.
func (r *Ring[T]) DrainTo(buf []T) int {
	n := 0
	for n < len(buf) {
		item, ok := r.TryPop()
		if !ok {
			break
		}
		buf[n] = item
		n++
	}
	return n
}

// Len returns the approximate number of queued items.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return int(r.mask + 1)
}
