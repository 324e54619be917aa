package ecs

import (
	"math/bits"
)

// syncRing is a growable ring buffer of sync records ordered by frame. Records are appended at the
// back every tick, evicted from the front and truncated from the back on restore.
type syncRing struct {
	buf  []*SyncRecord
	mask uint64 // cap-1, cap is power of two
	head uint64 // absolute index of the oldest record
	tail uint64 // absolute index one past the newest record
}

func newSyncRing(capacity int) *syncRing {
	capacity = roundUpPowerOfTwo(capacity)
	return &syncRing{
		buf:  make([]*SyncRecord, capacity),
		mask: uint64(capacity - 1), //nolint:gosec // capacity is a positive power of two
	}
}

func (r *syncRing) len() int {
	return int(r.tail - r.head) //nolint:gosec // bounded by len(buf)
}

// at returns the i-th oldest record.
func (r *syncRing) at(i int) *SyncRecord {
	return r.buf[(r.head+uint64(i))&r.mask] //nolint:gosec // i is bounded by len
}

func (r *syncRing) pushBack(rec *SyncRecord) {
	if r.len() == len(r.buf) {
		r.grow()
	}
	r.buf[r.tail&r.mask] = rec
	r.tail++
}

func (r *syncRing) front() *SyncRecord {
	if r.len() == 0 {
		return nil
	}
	return r.buf[r.head&r.mask]
}

func (r *syncRing) back() *SyncRecord {
	if r.len() == 0 {
		return nil
	}
	return r.buf[(r.tail-1)&r.mask]
}

func (r *syncRing) popFront() *SyncRecord {
	if r.len() == 0 {
		return nil
	}
	slot := r.head & r.mask
	rec := r.buf[slot]
	r.buf[slot] = nil
	r.head++
	return rec
}

func (r *syncRing) popBack() *SyncRecord {
	if r.len() == 0 {
		return nil
	}
	r.tail--
	slot := r.tail & r.mask
	rec := r.buf[slot]
	r.buf[slot] = nil
	return rec
}

// grow doubles the capacity and unwraps the records to the start of the new buffer.
func (r *syncRing) grow() {
	n := r.len()
	buf := make([]*SyncRecord, len(r.buf)*2)
	for i := range n {
		buf[i] = r.at(i)
	}
	r.buf = buf
	r.mask = uint64(len(buf) - 1) //nolint:gosec // power of two
	r.head = 0
	r.tail = uint64(n) //nolint:gosec // n >= 0
}

func roundUpPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1)) //nolint:gosec // n >= 2 at this point
}
