package eventbus

import (
	"sync"
	"sync/atomic"
)

// AsyncPublisher queues events and publishes them on a Bus from worker
// goroutines. It decouples publishers that hold locks (token refresh, session
// creation) from subscribers that may call back into them. With one worker
// the delivery order matches the enqueue order.
type AsyncPublisher struct {
	bus       *Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	dropped   atomic.Int64
	onPanic   func(topic string, r any)
}

type asyncEvent struct {
	topic   string
	payload any
}

// NewAsyncPublisher creates a publisher with workerNum workers and a queue of
// queueSize events.
func NewAsyncPublisher(bus *Bus, workerNum, queueSize int) *AsyncPublisher {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &AsyncPublisher{
		bus:       bus,
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// OnPanic installs a hook for handler panics. Workers survive them either way.
func (p *AsyncPublisher) OnPanic(fn func(topic string, r any)) {
	p.onPanic = fn
}

func (p *AsyncPublisher) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workerNum; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop drains nothing: queued events that have not been picked up are lost.
func (p *AsyncPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
	})
}

func (p *AsyncPublisher) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case ev := <-p.workChan:
			p.deliver(ev)
		}
	}
}

func (p *AsyncPublisher) deliver(ev asyncEvent) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(ev.topic, r)
		}
	}()
	p.bus.Publish(ev.topic, ev.payload)
}

// controlTopics drive teardown elsewhere and are never dropped.
var controlTopics = map[string]bool{
	EventAccountRemoved:     true,
	EventAccountNeedsAction: true,
}

// Publish enqueues an event. When the queue is full a control event waits for
// room (or for Stop); any other event is dropped and counted.
func (p *AsyncPublisher) Publish(topic string, payload any) {
	ev := asyncEvent{topic: topic, payload: payload}
	if controlTopics[topic] {
		select {
		case p.workChan <- ev:
		case <-p.stopChan:
			p.dropped.Add(1)
		}
		return
	}
	select {
	case p.workChan <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Bus returns the bus events are delivered on.
func (p *AsyncPublisher) Bus() *Bus {
	return p.bus
}
