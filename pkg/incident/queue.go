package incident

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
)

// eventHeap is a container/heap implementation ordered by (priority rank,
// insertion sequence): strict priority order, FIFO within a rank.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].insertSeq < h[j].insertSeq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityQueue is a bounded-wait, concurrency-safe priority queue of
// Events. Waiters block on a notify channel instead of polling.
type PriorityQueue struct {
	mu     sync.Mutex
	heap   eventHeap
	notify chan struct{}
	seq    uint64
}

// NewPriorityQueue returns an empty queue.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{
		notify: make(chan struct{}, 1),
	}
	heap.Init(&q.heap)
	return q
}

// Push enqueues event, assigning it the next insertion sequence number for
// FIFO tie-breaking, and wakes one waiting Pop.
func (q *PriorityQueue) Push(e *Event) {
	q.mu.Lock()
	e.insertSeq = atomic.AddUint64(&q.seq, 1)
	heap.Push(&q.heap, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until an event is available, ctx is done, or timeout elapses,
// whichever comes first. It returns (nil, false) on timeout or
// cancellation; the caller should treat that as "queue empty, yield".
func (q *PriorityQueue) Pop(ctx context.Context, timeout func() <-chan struct{}) (*Event, bool) {
	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			e := heap.Pop(&q.heap).(*Event)
			q.mu.Unlock()
			return e, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
			continue
		case <-ctx.Done():
			return nil, false
		case <-timeout():
			return nil, false
		}
	}
}

// Len reports the current queue depth.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
