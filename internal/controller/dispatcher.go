package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/icu-core/internal/peripheral"
)

// DefaultEventBuffer is the dispatcher queue capacity when none is given.
const DefaultEventBuffer = 256

// drainTimeout bounds delivery of queued events after Stop.
const drainTimeout = 2 * time.Second

// Dispatcher fans events out to sinks on its own goroutine.
//
// Publish never blocks: when the queue is full the event is dropped and
// counted, so a slow broker or disk cannot stall the control loop.
type Dispatcher struct {
	queue  chan Event
	logger peripheral.Logger

	mu    sync.RWMutex
	sinks []Sink

	dropped   atomic.Uint64
	delivered atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher returns a stopped dispatcher with the given queue size.
func NewDispatcher(buffer int, logger peripheral.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	if logger == nil {
		logger = peripheral.NopLogger()
	}
	return &Dispatcher{
		queue:  make(chan Event, buffer),
		logger: logger,
		sinks:  sinks,
	}
}

// AddSink registers another sink.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Publish enqueues ev. It reports false when the event was dropped.
func (d *Dispatcher) Publish(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Start launches the delivery goroutine. Call Stop to end it.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

// drain delivers whatever is still queued, within drainTimeout.
func (d *Dispatcher) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Handle(ctx, ev); err != nil {
			d.logger.Warn("event sink failed", "event", string(ev.Type), "error", err)
		}
	}
	d.delivered.Add(1)
}

// Stop cancels delivery, flushes the queue and waits for the goroutine.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
}

// Dropped returns how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Delivered returns how many events reached the sinks.
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

// Pending returns the current queue depth.
func (d *Dispatcher) Pending() int { return len(d.queue) }
