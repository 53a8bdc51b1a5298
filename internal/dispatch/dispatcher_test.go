package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
	"github.com/rs/zerolog"
)

// syncGuiQueue runs posted tasks inline, synchronously, on the calling
// goroutine. It stands in for ChanGuiQueue in tests that need deterministic
// ordering without a real drain goroutine.
type syncGuiQueue struct{}

func (q *syncGuiQueue) Post(task func()) {
	task()
}

// recordingEngine answers every request with a fixed code after an optional
// delay, and polls the delegate's cancellation flag while "working" so
// cancellation tests can observe a mid-flight abort.
type recordingEngine struct {
	name  string
	code  routecode.Code
	delay time.Duration
	fault *EngineFault

	mu    sync.Mutex
	calls int
}

func (e *recordingEngine) GetName() string { return e.name }
func (e *recordingEngine) ClearState()     {}

func (e *recordingEngine) CalculateRoute(ctx context.Context, cp geo.Checkpoints, direction geo.Point, adjustToPrev bool, delegate *EngineDelegate, route *Route) routecode.Code {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.fault != nil {
		panic(*e.fault)
	}

	deadline := time.Now().Add(e.delay)
	for time.Now().Before(deadline) {
		if delegate.IsCancelled() {
			return routecode.Cancelled
		}
		select {
		case <-ctx.Done():
			return routecode.Cancelled
		case <-time.After(time.Millisecond):
		}
	}
	route.DistanceMeters = 1234.5
	route.Polyline = "encoded"
	return e.code
}

type nopFetcher struct {
	absent []string
}

func (f *nopFetcher) GenerateRequest(geo.Checkpoints) {}
func (f *nopFetcher) GetAbsentCountries(ctx context.Context) []string {
	return f.absent
}

func testCheckpoints() geo.Checkpoints {
	return geo.Checkpoints{
		Start:  geo.Point{X: geo.LonToX(13.4), Y: geo.LatToY(52.5)},
		Finish: geo.Point{X: geo.LonToX(13.5), Y: geo.LatToY(52.6)},
	}
}

func newTestDispatcher() *Dispatcher {
	return New(nil, false, zerolog.Nop())
}

func TestCalculateRouteHappyPath(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError}, nil)

	done := make(chan struct{})
	var gotCode routecode.Code
	var gotRoute *Route

	cb := Callbacks{
		OnReady: func(route *Route, code routecode.Code) {
			gotRoute = route
			gotCode = code
			close(done)
		},
	}

	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnReady")
	}

	if gotCode != routecode.NoError {
		t.Fatalf("expected NoError, got %v", gotCode)
	}
	if gotRoute == nil || gotRoute.DistanceMeters != 1234.5 {
		t.Fatalf("unexpected route: %+v", gotRoute)
	}
}

func TestCalculateRouteNeedMoreMaps(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError}, &nopFetcher{absent: []string{"Germany"}})

	ready := make(chan routecode.Code, 1)
	needMore := make(chan []string, 1)

	cb := Callbacks{
		OnReady:        func(route *Route, code routecode.Code) { ready <- code },
		OnNeedMoreMaps: func(routeID uint64, regions []string) { needMore <- regions },
	}

	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)

	select {
	case code := <-ready:
		if code != routecode.NoError {
			t.Fatalf("expected NoError primary delivery, got %v", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for primary OnReady")
	}

	select {
	case regions := <-needMore:
		if len(regions) != 1 || regions[0] != "Germany" {
			t.Fatalf("unexpected absent regions: %v", regions)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnNeedMoreMaps")
	}
}

func TestCalculateRouteNotFound(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.RouteNotFound}, nil)

	removed := make(chan routecode.Code, 1)
	cb := Callbacks{
		OnReady:       func(route *Route, code routecode.Code) { t.Fatalf("OnReady should not fire for RouteNotFound") },
		OnRemoveRoute: func(code routecode.Code) { removed <- code },
	}

	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)

	select {
	case code := <-removed:
		if code != routecode.RouteNotFound {
			t.Fatalf("expected RouteNotFound, got %v", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnRemoveRoute")
	}
}

func TestCalculateRoutePreemptionCancelsStaleCallback(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError, delay: 50 * time.Millisecond}, nil)

	firstFired := false
	firstCB := Callbacks{
		OnReady: func(route *Route, code routecode.Code) { firstFired = true },
	}
	firstProxy := d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, firstCB, time.Second)

	// Preempt before the worker has necessarily even started the first request.
	done := make(chan struct{})
	secondCB := Callbacks{
		OnReady: func(route *Route, code routecode.Code) { close(done) },
	}
	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, secondCB, time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second OnReady")
	}

	if !firstProxy.cancelled() {
		t.Fatal("expected first proxy to be cancelled by preemption")
	}
	if firstFired {
		t.Fatal("stale callback from preempted request must never fire")
	}
}

func TestCalculateRouteExplicitCancel(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError, delay: 200 * time.Millisecond}, nil)

	fired := false
	cb := Callbacks{
		OnReady:       func(route *Route, code routecode.Code) { fired = true },
		OnRemoveRoute: func(code routecode.Code) { fired = true },
	}
	proxy := d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)

	time.Sleep(10 * time.Millisecond)
	proxy.Cancel()

	// Give the worker ample time to finish the (cancelled) computation and
	// attempt delivery; it must not land on the already-cancelled proxy.
	time.Sleep(300 * time.Millisecond)

	if fired {
		t.Fatal("callback fired on a proxy that was explicitly cancelled")
	}
}

func TestEngineFaultBecomesInternalError(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", fault: &EngineFault{Msg: "boom"}}, nil)

	ready := make(chan routecode.Code, 1)
	cb := Callbacks{
		OnReady: func(route *Route, code routecode.Code) { ready <- code },
	}
	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)

	select {
	case code := <-ready:
		if code != routecode.InternalError {
			t.Fatalf("expected InternalError, got %v", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnReady after EngineFault")
	}
}

func TestRouteIDsAreMonotonic(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError}, nil)

	var lastID uint64
	for i := 0; i < 5; i++ {
		done := make(chan struct{})
		cb := Callbacks{
			OnReady: func(route *Route, code routecode.Code) {
				if route.ID <= lastID {
					t.Errorf("route ID did not increase: got %d, last %d", route.ID, lastID)
				}
				lastID = route.ID
				close(done)
			},
		}
		d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)
		<-done
	}
}

func TestCloseIsBoundedAndIdempotent(t *testing.T) {
	d := newTestDispatcher()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError, delay: 50 * time.Millisecond}, nil)

	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, Callbacks{}, time.Second)

	closed := make(chan struct{})
	go func() {
		d.Close()
		d.Close() // idempotent
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return in time")
	}
}

func TestClearStateInvokesEngine(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	cleared := make(chan struct{}, 1)
	engine := &clearStateEngine{cleared: cleared}
	d.SetEngine(engine, nil)

	d.ClearState()

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("ClearState did not reach the engine")
	}
}

type clearStateEngine struct {
	cleared chan struct{}
}

func (e *clearStateEngine) GetName() string { return "clear" }
func (e *clearStateEngine) ClearState()     { e.cleared <- struct{}{} }
func (e *clearStateEngine) CalculateRoute(ctx context.Context, cp geo.Checkpoints, direction geo.Point, adjustToPrev bool, delegate *EngineDelegate, route *Route) routecode.Code {
	return routecode.NoError
}

// orderingSink records the order in which "stats" and "ready" events land,
// so a test can assert the stats record precedes the terminal callback.
type orderingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *orderingSink) Emit(record map[string]string) {
	s.mu.Lock()
	s.events = append(s.events, "stats")
	s.mu.Unlock()
}

func TestStatsAreEmittedOnGuiQueueBeforeOnReady(t *testing.T) {
	sink := &orderingSink{}
	d := New(sink, false, zerolog.Nop())
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError}, nil)

	done := make(chan struct{})
	cb := Callbacks{
		OnReady: func(route *Route, code routecode.Code) {
			sink.mu.Lock()
			sink.events = append(sink.events, "ready")
			sink.mu.Unlock()
			close(done)
		},
	}

	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, &syncGuiQueue{}, cb, time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnReady")
	}

	sink.mu.Lock()
	events := append([]string(nil), sink.events...)
	sink.mu.Unlock()

	if len(events) != 2 || events[0] != "stats" || events[1] != "ready" {
		t.Fatalf("expected [stats, ready] order, got %v", events)
	}
}

// gatedGuiQueue holds every posted task until release is closed, so a test
// can observe that nothing happens on the worker goroutine itself: if Emit
// ran inline rather than via Post, it would already have fired by the time
// the queue is still gated shut.
type gatedGuiQueue struct {
	release chan struct{}
	tasks   chan func()
}

func newGatedGuiQueue() *gatedGuiQueue {
	q := &gatedGuiQueue{release: make(chan struct{}), tasks: make(chan func(), 16)}
	go func() {
		<-q.release
		for task := range q.tasks {
			task()
		}
	}()
	return q
}

func (q *gatedGuiQueue) Post(task func()) { q.tasks <- task }
func (q *gatedGuiQueue) Open()            { close(q.release) }

func TestStatsEmitGoesThroughGuiQueuePostNotInline(t *testing.T) {
	emitted := make(chan struct{}, 1)
	sink := statsFunc(func(map[string]string) { emitted <- struct{}{} })

	d := New(sink, false, zerolog.Nop())
	defer d.Close()
	d.SetEngine(&recordingEngine{name: "test", code: routecode.NoError}, nil)

	gui := newGatedGuiQueue()
	readyCh := make(chan struct{})
	cb := Callbacks{OnReady: func(route *Route, code routecode.Code) { close(readyCh) }}

	d.CalculateRoute(testCheckpoints(), geo.Point{}, false, gui, cb, time.Second)

	// Give the worker ample time to finish the route and call Emit, if it
	// were going to call it inline rather than posting it to the gate.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-emitted:
		t.Fatal("stats sink was invoked before the GuiQueue was opened: Emit is running inline on the worker goroutine, not via GuiQueue.Post")
	default:
	}

	gui.Open()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the gated stats task to run")
	}
	select {
	case <-readyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the gated OnReady task to run")
	}
}

type statsFunc func(map[string]string)

func (f statsFunc) Emit(record map[string]string) { f(record) }
