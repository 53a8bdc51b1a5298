package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
)

// Route is the opaque artifact the engine produces. It is created by the
// worker, populated by the Engine, handed to the UI via OnReady only when
// the engine returns NoError (a recovered EngineFault hands over a fresh,
// empty Route instead), and never touched by the worker again afterward.
type Route struct {
	RouterName     string
	ID             uint64
	Checkpoints    geo.Checkpoints
	Polyline       string
	DistanceMeters float64
}

// EngineFault is the only panic value the worker recovers from an Engine
// call; it represents an anticipated routing failure (bad input, backend
// error) rather than a programming bug. Any other panic value propagates
// and crashes the process.
type EngineFault struct {
	Msg string
}

func (f EngineFault) Error() string { return f.Msg }

// EngineDelegate conveys cancellation, timeout, and progress/point-check
// callbacks into the Engine. A single atomic flag replaces the C++
// original's mutex-guarded bool since there is nothing else to guard here.
type EngineDelegate struct {
	cancelled atomic.Bool
	timeout   time.Duration

	onProgress   func(float64)
	onPointCheck func(geo.Point)
}

func newEngineDelegate(onProgress func(float64), onPointCheck func(geo.Point), timeout time.Duration) *EngineDelegate {
	return &EngineDelegate{
		timeout:      timeout,
		onProgress:   onProgress,
		onPointCheck: onPointCheck,
	}
}

// IsCancelled reports whether Cancel has been called. The engine is
// expected to poll this periodically during a long computation.
func (d *EngineDelegate) IsCancelled() bool { return d.cancelled.Load() }

// Cancel sets the cancellation flag. Idempotent.
func (d *EngineDelegate) Cancel() { d.cancelled.Store(true) }

// Timeout returns the per-request timeout the engine should honor.
func (d *EngineDelegate) Timeout() time.Duration { return d.timeout }

// ReportProgress lets the engine report fractional progress in [0, 1].
// The engine calls this directly; the proxy (not the delegate) is
// responsible for filtering it after cancellation.
func (d *EngineDelegate) ReportProgress(p float64) {
	if d.onProgress != nil {
		d.onProgress(p)
	}
}

// ReportPointCheck lets the engine report an intermediate point it visited.
// Only meaningful when the dispatcher was built with debug point-checks on.
func (d *EngineDelegate) ReportPointCheck(pt geo.Point) {
	if d.onPointCheck != nil {
		d.onPointCheck(pt)
	}
}

// Callbacks bundles the four user-facing callbacks a single CalculateRoute
// call supplies, rather than passing each as its own positional parameter.
type Callbacks struct {
	OnReady        func(route *Route, code routecode.Code)
	OnNeedMoreMaps func(routeID uint64, absentRegions []string)
	OnRemoveRoute  func(code routecode.Code)
	OnProgress     func(progress float64)
}

// Engine is the consumed routing backend. CalculateRoute may panic with an
// EngineFault to signal an unrecoverable internal failure; ordinary
// failures are reported through the returned routecode.Code.
type Engine interface {
	CalculateRoute(ctx context.Context, cp geo.Checkpoints, direction geo.Point, adjustToPrev bool, delegate *EngineDelegate, route *Route) routecode.Code
	ClearState()
	GetName() string
}

// Fetcher is the consumed online absent-regions fetcher. GenerateRequest is
// a non-blocking kick; GetAbsentCountries blocks (bounded by ctx) until the
// response arrives or the context is done.
type Fetcher interface {
	GenerateRequest(cp geo.Checkpoints)
	GetAbsentCountries(ctx context.Context) []string
}

// GuiQueue is the UI task queue: a fire-and-forget scheduler for tasks that
// must run on the UI thread, in the order they were posted.
type GuiQueue interface {
	Post(task func())
}

// StatsSink accepts a flattened key->value statistics record. Emission is
// skipped silently when no sink is installed (see NopSink below).
type StatsSink interface {
	Emit(record map[string]string)
}

// NopSink is a StatsSink that discards every record. Used when no sink is
// configured, so the dispatcher never needs to nil-check its sink field.
type NopSink struct{}

// Emit discards record.
func (NopSink) Emit(map[string]string) {}
