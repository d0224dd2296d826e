package streamer

import (
	"sync"
)

// dispatcher runs Handler callbacks in order on its own goroutine. The read
// loop and the drift monitor only queue them, so a callback may call Stop.
type dispatcher struct {
	handler Handler
	once    sync.Once

	mu     sync.Mutex
	queue  []func(h Handler)
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newDispatcher(h Handler) *dispatcher {
	return &dispatcher{
		handler: h,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// push queues fn. Callbacks pushed after close are dropped.
func (d *dispatcher) push(fn func(h Handler)) {
	d.enqueue(fn, false)
}

// close queues fn as the last callback.
func (d *dispatcher) close(fn func(h Handler)) {
	d.enqueue(fn, true)
}

func (d *dispatcher) enqueue(fn func(h Handler), last bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.closed = last
	d.mu.Unlock()

	d.once.Do(func() { go d.run() })
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		queue, closed := d.queue, d.closed
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range queue {
			fn(d.handler)
		}
		if closed {
			return
		}
		if len(queue) == 0 {
			<-d.notify
		}
	}
}
