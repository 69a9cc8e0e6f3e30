// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"sync"
	"sync/atomic"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// dispatcher delivers events on one goroutine from an unbounded FIFO, so a
// slow consumer never blocks a worker. Events pushed before anyone called
// Events are dropped.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []types.Event
	closed bool

	subscribed atomic.Bool
	out        chan types.Event
	done       chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		out:  make(chan types.Event),
		done: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *dispatcher) events() <-chan types.Event {
	d.subscribed.Store(true)
	return d.out
}

func (d *dispatcher) push(ev types.Event) {
	if !d.subscribed.Load() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
}

func (d *dispatcher) loop() {
	defer close(d.done)
	defer close(d.out)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue[0] = types.Event{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.out <- ev
	}
}

// close stops intake and blocks until queued events are delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	if d.subscribed.Load() {
		<-d.done
	}
}
