package dispatch

import (
	"context"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
)

// workerLoop is the single background execution context. It is either
// sleeping on d.cond or executing exactly one request; the dispatcher never
// runs two requests simultaneously.
func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for !d.exit && !d.hasRequest && !d.clearState {
			d.cond.Wait()
		}

		if d.clearState {
			if d.engine != nil {
				d.engine.ClearState()
			}
			d.clearState = false
		}

		if d.exit {
			d.mu.Unlock()
			return
		}

		if !d.hasRequest {
			d.mu.Unlock()
			continue
		}

		snap, ok := d.snapshotLocked()
		d.mu.Unlock()

		if !ok {
			continue
		}

		d.executeRequest(snap)
	}
}

// requestSnapshot is everything the worker needs outside the lock to
// execute one request.
type requestSnapshot struct {
	checkpoints  geo.Checkpoints
	direction    geo.Point
	adjustToPrev bool
	delegate     *DelegateProxy
	engine       Engine
	fetcher      Fetcher
	routeID      uint64
	routerName   string
}

// snapshotLocked moves the pending slot into local values and clears
// hasRequest. Must be called with d.mu held. Returns ok=false when the
// configuration is incomplete (no engine or no delegate); the worker
// silently drops such a request rather than surfacing it to the caller.
func (d *Dispatcher) snapshotLocked() (requestSnapshot, bool) {
	d.hasRequest = false

	if d.engine == nil || d.pending == nil || d.pending.delegate == nil {
		return requestSnapshot{}, false
	}

	d.routeSeq++

	snap := requestSnapshot{
		checkpoints:  d.pending.checkpoints,
		direction:    d.pending.direction,
		adjustToPrev: d.pending.adjustToPrev,
		delegate:     d.pending.delegate,
		engine:       d.engine,
		fetcher:      d.fetcher,
		routeID:      d.routeSeq,
		routerName:   d.engine.GetName(),
	}
	return snap, true
}

// executeRequest runs entirely outside the dispatcher lock: it computes the
// route, delivers statistics and the terminal callback, and returns. Every
// value handed to GuiQueue.Post is captured by the closure; the worker
// retains no reference to the route or the delegate once this returns.
func (d *Dispatcher) executeRequest(snap requestSnapshot) {
	route := &Route{
		RouterName:  snap.routerName,
		ID:          snap.routeID,
		Checkpoints: snap.checkpoints,
	}

	if snap.fetcher != nil {
		snap.fetcher.GenerateRequest(snap.checkpoints)
	}

	start := time.Now()
	code, faulted := d.callEngine(snap, route)
	elapsed := time.Since(start).Seconds()

	// Stats are posted to the same GuiQueue as the callbacks below, never
	// emitted inline on this goroutine, and posted first so an observer on
	// the queue sees the stats record before the terminal callback.
	if faulted != nil {
		d.logCode(snap, routecode.InternalError, elapsed)
		rec := FormatException(snap.routeID, snap.routerName, snap.checkpoints, snap.direction, faulted.Msg)
		snap.delegate.gui.Post(func() { d.stats.Emit(rec) })
		snap.delegate.OnReady(&Route{RouterName: snap.routerName, ID: snap.routeID}, routecode.InternalError)
		return
	}

	d.logCode(snap, code, elapsed)
	rec := FormatStats(snap.routeID, snap.routerName, snap.checkpoints, snap.direction, code, route.DistanceMeters, elapsed)
	snap.delegate.gui.Post(func() { d.stats.Emit(rec) })

	// Draw the route without waiting on the absent-fetcher's network latency.
	if code == routecode.NoError {
		snap.delegate.OnReady(route, code)
	}

	needFetchAbsent := code != routecode.Cancelled
	var absent []string
	if snap.fetcher != nil && needFetchAbsent {
		ctx, cancel := context.WithTimeout(context.Background(), snap.delegate.Delegate().Timeout())
		absent = snap.fetcher.GetAbsentCountries(ctx)
		cancel()
	}

	if len(absent) > 0 && code == routecode.NoError {
		code = routecode.NeedMoreMaps
	}

	elapsed = time.Since(start).Seconds()
	d.logCode(snap, code, elapsed)

	if code == routecode.NoError {
		return
	}
	if code == routecode.NeedMoreMaps {
		snap.delegate.OnNeedMoreMaps(snap.routeID, absent)
		return
	}
	snap.delegate.OnRemoveRoute(code)
}

// callEngine invokes the engine, recovering only an EngineFault panic. Any
// other recovered value is re-panicked so it still crashes the process
// instead of being mistaken for a routing failure.
func (d *Dispatcher) callEngine(snap requestSnapshot, route *Route) (code routecode.Code, fault *EngineFault) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ef, ok := r.(EngineFault); ok {
			fault = &ef
			return
		}
		panic(r)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), snap.delegate.Delegate().Timeout())
	defer cancel()

	code = snap.engine.CalculateRoute(ctx, snap.checkpoints, snap.direction, snap.adjustToPrev, snap.delegate.Delegate(), route)
	return code, nil
}

func (d *Dispatcher) logCode(snap requestSnapshot, code routecode.Code, elapsedSec float64) {
	level, msg := routecode.LogMessage(code)
	ev := d.log.Info()
	if level == "warn" {
		ev = d.log.Warn()
	}
	ev.Uint64("route_id", snap.routeID).
		Str("result", code.String()).
		Float64("elapsed_sec", elapsedSec).
		Msg(msg)
}
