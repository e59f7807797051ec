package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	// BufferSize is the queue depth. Values below 1 are raised to 1.
	BufferSize int
	// DropIfFull discards events when the queue is full instead of blocking
	// the emitter.
	DropIfFull bool
	// DeliverTimeout bounds the context handed to each sink call. Zero means
	// no deadline.
	DeliverTimeout time.Duration
}

// Dispatcher hands events to a sink on a single background goroutine, so the
// sink sees them in emit order and a slow sink never runs on the caller.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	cfg.BufferSize = max(cfg.BufferSize, 1)
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain delivers whatever was queued before Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx := context.Background()
	if d.cfg.DeliverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DeliverTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
		}
	}()
	d.sink.Emit(ctx, event)
	d.delivered.Add(1)
}

// Emit queues event and reports whether it was accepted. In drop-if-full mode
// it never blocks; otherwise it waits for buffer space, ctx, or Close. Events
// refused for lack of space or a cancelled ctx count as dropped; events
// refused after Close do not.
func (d *Dispatcher) Emit(ctx context.Context, event Event) bool {
	if d == nil || d.closed.Load() {
		return false
	}

	var wait <-chan struct{}
	if !d.cfg.DropIfFull && ctx != nil {
		wait = ctx.Done()
	}

	select {
	case d.ch <- event:
		return true
	case <-d.done:
		return false
	default:
		if d.cfg.DropIfFull {
			d.dropped.Add(1)
			return false
		}
	}

	select {
	case d.ch <- event:
		return true
	case <-d.done:
		return false
	case <-wait:
		d.dropped.Add(1)
		return false
	}
}

// Close stops accepting events and delivers what is already buffered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Delivered returns the number of sink calls that returned normally.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Dropped returns the number of events discarded by backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Panics returns the number of sink calls that panicked.
func (d *Dispatcher) Panics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
