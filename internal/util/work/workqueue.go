package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"partybot-server-go/internal/util"
)

var ErrWorkQueueClosed = errors.New("work queue closed")

// Item is a queued unit of work with its retry budget.
type Item[T any] struct {
	Data       T
	Priority   int
	Retries    int
	MaxRetries int
	LastError  error
	CreatedAt  time.Time
}

// Handler processes one item. A non-nil error consumes a retry.
type Handler[T any] func(ctx context.Context, data T) error

// ResultFunc observes the final outcome of an item, after its last attempt.
type ResultFunc[T any] func(item *Item[T], err error)

// Option customizes a Queue.
type Option[T any] func(*Queue[T])

// WithBackoff sets the delay before retry n (1-based).
func WithBackoff[T any](fn func(retry int) time.Duration) Option[T] {
	return func(q *Queue[T]) { q.backoff = fn }
}

// WithResult registers fn to observe every item's final outcome.
func WithResult[T any](fn ResultFunc[T]) Option[T] {
	return func(q *Queue[T]) { q.onResult = fn }
}

// WithRetryIf limits retries to errors fn accepts. Other errors settle the
// item at once.
func WithRetryIf[T any](fn func(error) bool) Option[T] {
	return func(q *Queue[T]) { q.retryIf = fn }
}

// Queue is a priority work queue served by a fixed worker pool.
type Queue[T any] struct {
	queue    *util.PriorityQueue[*Item[T]]
	handler  Handler[T]
	backoff  func(retry int) time.Duration
	retryIf  func(error) bool
	onResult ResultFunc[T]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// DefaultBackoff waits one second per retry, capped at a minute.
func DefaultBackoff(retry int) time.Duration {
	return min(time.Duration(retry)*time.Second, time.Minute)
}

// NewQueue starts numWorkers workers feeding items to handler.
func NewQueue[T any](numWorkers int, handler Handler[T], opts ...Option[T]) *Queue[T] {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		queue:   util.NewPriorityQueue[*Item[T]](),
		handler: handler,
		backoff: DefaultBackoff,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go q.run()
	}
	return q
}

// Submit queues data with the given priority and retry budget.
func (q *Queue[T]) Submit(data T, priority, maxRetries int) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrWorkQueueClosed
	}

	return q.queue.Push(&Item[T]{
		Data:       data,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}, priority)
}

// Stop rejects new items, lets workers drain what is queued and waits for
// them. ctx bounds the wait; when it ends, in-flight retries are abandoned.
func (q *Queue[T]) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()

	q.queue.Close()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Pending returns the number of queued items.
func (q *Queue[T]) Pending() int {
	return q.queue.Len()
}

func (q *Queue[T]) run() {
	defer q.wg.Done()
	for {
		item, err := q.queue.Pop(q.ctx)
		if err != nil {
			return
		}
		q.process(item)
	}
}

// process runs item until it succeeds or its retries are exhausted.
func (q *Queue[T]) process(item *Item[T]) {
	for {
		err := q.handler(q.ctx, item.Data)
		if err == nil {
			q.report(item, nil)
			return
		}

		item.LastError = err
		if q.retryIf != nil && !q.retryIf(err) {
			q.report(item, err)
			return
		}
		item.Retries++
		if item.Retries > item.MaxRetries {
			q.report(item, err)
			return
		}

		timer := time.NewTimer(q.backoff(item.Retries))
		select {
		case <-timer.C:
		case <-q.ctx.Done():
			timer.Stop()
			q.report(item, err)
			return
		}
	}
}

func (q *Queue[T]) report(item *Item[T], err error) {
	if q.onResult != nil {
		q.onResult(item, err)
	}
}
