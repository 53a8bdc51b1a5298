// Package dispatch implements the asynchronous routing dispatcher: a
// single-consumer background worker that coalesces route requests, guards
// user callbacks against cancellation, and delivers every result on the
// caller-supplied GuiQueue.
package dispatch

import (
	"sync"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/rs/zerolog"
)

// pendingRequest is the dispatcher's single-slot mailbox. A new submission
// overwrites whatever is here; only the latest submission ever survives to
// be picked up by the worker.
type pendingRequest struct {
	checkpoints  geo.Checkpoints
	direction    geo.Point
	adjustToPrev bool
	delegate     *DelegateProxy
}

// Dispatcher owns the worker, the current engine/fetcher, the pending
// request slot, and the active delegate. At most one delegate is ever
// "active"; a new CalculateRoute cancels whatever was there before.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	engine  Engine
	fetcher Fetcher

	pending    *pendingRequest
	hasRequest bool
	clearState bool
	exit       bool

	activeDelegate *DelegateProxy
	routeSeq       uint64

	stats StatsSink
	debug bool
	log   zerolog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a Dispatcher and starts its worker goroutine immediately.
// stats may be nil, in which case a NopSink is installed.
func New(stats StatsSink, debug bool, log zerolog.Logger) *Dispatcher {
	if stats == nil {
		stats = NopSink{}
	}
	d := &Dispatcher{
		stats: stats,
		debug: debug,
		log:   log,
	}
	d.cond = sync.NewCond(&d.mu)

	d.wg.Add(1)
	go d.workerLoop()

	return d
}

// SetEngine installs a new engine/fetcher pair, cancelling any in-flight
// delegate first. Safe to call repeatedly, including with nils to detach.
func (d *Dispatcher) SetEngine(engine Engine, fetcher Fetcher) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetDelegateLocked()

	d.engine = engine
	d.fetcher = fetcher
}

// CalculateRoute submits a new route request, preempting whatever request
// is currently pending or in-flight. The returned *DelegateProxy lets the
// caller cancel this specific request directly (e.g. on client disconnect)
// in addition to the implicit preemption that happens when a newer request
// arrives on the same dispatcher.
func (d *Dispatcher) CalculateRoute(cp geo.Checkpoints, direction geo.Point, adjustToPrev bool, gui GuiQueue, cb Callbacks, timeout time.Duration) *DelegateProxy {
	proxy := NewDelegateProxy(cb, nil, timeout, gui, d.debug)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetDelegateLocked()

	d.pending = &pendingRequest{
		checkpoints:  cp,
		direction:    direction,
		adjustToPrev: adjustToPrev,
		delegate:     proxy,
	}
	d.activeDelegate = proxy
	d.hasRequest = true
	d.cond.Signal()

	return proxy
}

// ClearState asks the worker to reset the engine's internal state on its
// next wake-up. A no-op (beyond cancelling the active delegate) when no
// engine is installed; the worker checks for an engine before calling
// ClearState on it.
func (d *Dispatcher) ClearState() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearState = true
	d.cond.Signal()

	d.resetDelegateLocked()
}

// Close cancels the active delegate, asks the worker to exit, and joins it.
// The join happens outside the lock so the worker can still acquire it
// while winding down. Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.resetDelegateLocked()
		d.exit = true
		d.cond.Signal()
		d.mu.Unlock()

		d.wg.Wait()
	})
}

// resetDelegateLocked cancels the currently active delegate, if any. Must
// be called with d.mu held.
func (d *Dispatcher) resetDelegateLocked() {
	if d.activeDelegate != nil {
		d.activeDelegate.Cancel()
		d.activeDelegate = nil
	}
}
