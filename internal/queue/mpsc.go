// Package queue implements a bounded multi-producer/single-consumer ring
// buffer, specialized from the classic Vyukov bounded MPMC queue.
package queue

import (
	"runtime"
	"sync/atomic"
)

// MPSC is a fixed-capacity ring buffer of cells, each carrying a sequence
// counter that protects a single slot of storage. Capacity is rounded up to
// the next power of two so slot indices can be computed with a mask instead
// of a modulo.
type MPSC struct {
	mask       uint64
	cells      []cell
	enqueuePos uint64
	dequeuePos uint64
}

type cell struct {
	sequence uint64
	value    any
}

// New constructs a queue with room for at least capacity items. It panics if
// capacity is zero, matching the source's "construction with capacity 0
// fails" contract.
func New(capacity int) *MPSC {
	if capacity <= 0 {
		panic("queue: capacity must be non-zero")
	}
	size := nextPowerOfTwo(uint64(capacity))
	q := &MPSC{
		mask:  size - 1,
		cells: make([]cell, size),
	}
	for i := range q.cells {
		q.cells[i].sequence = uint64(i)
	}
	return q
}

func nextPowerOfTwo(n uint64) uint64 {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Capacity returns the number of slots in the ring.
func (q *MPSC) Capacity() int {
	return len(q.cells)
}

// Size returns a best-effort count of queued-but-undequeued items. It is
// exact only when no producer/consumer is concurrently active.
func (q *MPSC) Size() int {
	enq := atomic.LoadUint64(&q.enqueuePos)
	deq := atomic.LoadUint64(&q.dequeuePos)
	if enq < deq {
		return 0
	}
	return int(enq - deq)
}

// Enqueue blocks until the value is published. Many goroutines may call this
// concurrently; their relative order is the global FIFO order of the queue.
func (q *MPSC) Enqueue(value any) {
	pos := atomic.AddUint64(&q.enqueuePos, 1) - 1
	c := &q.cells[pos&q.mask]
	// The cell becomes writable once its sequence catches up to pos — i.e.
	// once the consumer has finished the previous lap around the ring.
	for atomic.LoadUint64(&c.sequence) != pos {
		runtime.Gosched()
	}
	c.value = value
	atomic.StoreUint64(&c.sequence, pos+1)
}

// TryDequeue is the single consumer's non-blocking pop. It returns
// (value, true) if a published item was available, or (nil, false) if the
// next cell has not yet been published.
func (q *MPSC) TryDequeue() (any, bool) {
	pos := q.dequeuePos
	c := &q.cells[pos&q.mask]
	seq := atomic.LoadUint64(&c.sequence)
	diff := int64(seq) - int64(pos+1)
	if diff != 0 {
		return nil, false
	}
	value := c.value
	c.value = nil
	q.dequeuePos = pos + 1
	atomic.StoreUint64(&c.sequence, pos+q.mask+1)
	return value, true
}

// Dequeue blocks (busy-polls with a yield) until a value is available. The
// source's blocking variant parks on the cell sequence; a plain spin+yield
// is the idiomatic Go equivalent for a single consumer without introducing a
// second synchronization primitive.
func (q *MPSC) Dequeue() any {
	for {
		if v, ok := q.TryDequeue(); ok {
			return v
		}
		runtime.Gosched()
	}
}
