package util

import (
	"container/heap"
	"context"
	"errors"
	"sync"
)

var ErrPriorityQueueClosed = errors.New("priority queue closed")

// PriorityItem represents an item with priority
type PriorityItem[T any] struct {
	Value    T
	Priority int // Higher number means higher priority
	seq      uint64
	index    int
}

type itemHeap[T any] []*PriorityItem[T]

func (h itemHeap[T]) Len() int { return len(h) }

// Less orders by priority, then by insertion so equal priorities stay FIFO.
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*PriorityItem[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PriorityQueue is a blocking priority queue safe for concurrent use.
type PriorityQueue[T any] struct {
	mu     sync.Mutex
	items  itemHeap[T]
	seq    uint64
	closed bool

	// ready is closed and replaced whenever an item arrives or the queue closes.
	ready chan struct{}
}

// NewPriorityQueue creates a new priority queue
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{ready: make(chan struct{})}
}

// Push adds an item to the priority queue
func (pq *PriorityQueue[T]) Push(value T, priority int) error {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return ErrPriorityQueueClosed
	}
	pq.seq++
	heap.Push(&pq.items, &PriorityItem[T]{Value: value, Priority: priority, seq: pq.seq})
	pq.wake()
	return nil
}

// Pop removes the highest priority item, blocking until one is available,
// the queue is closed and drained, or ctx ends.
func (pq *PriorityQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		pq.mu.Lock()
		if len(pq.items) > 0 {
			item := heap.Pop(&pq.items).(*PriorityItem[T])
			pq.mu.Unlock()
			return item.Value, nil
		}
		if pq.closed {
			pq.mu.Unlock()
			return zero, ErrPriorityQueueClosed
		}
		ready := pq.ready
		pq.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

// Close rejects further pushes. Queued items can still be popped.
func (pq *PriorityQueue[T]) Close() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.closed {
		return
	}
	pq.closed = true
	pq.wake()
}

// wake releases every blocked Pop. Callers hold pq.mu.
func (pq *PriorityQueue[T]) wake() {
	close(pq.ready)
	pq.ready = make(chan struct{})
}
