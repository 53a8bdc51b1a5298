package dispatch

import (
	"sync"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
)

// DelegateProxy is the per-request holder of a caller's callbacks plus the
// cancellation flag that guards them. Filtering happens before a callback
// is ever scheduled on the GuiQueue — never after — so that once Cancel
// returns, no further user callback from this proxy will run. Callbacks
// already scheduled before Cancel may still execute; each one captured its
// own snapshot of what it needs.
type DelegateProxy struct {
	mu sync.Mutex

	onReady        func(route *Route, code routecode.Code)
	onNeedMoreMaps func(routeID uint64, absentRegions []string)
	onRemoveRoute  func(code routecode.Code)
	onProgress     func(progress float64)
	onPointCheck   func(pt geo.Point)

	delegate *EngineDelegate
	gui      GuiQueue
	debug    bool
}

// NewDelegateProxy builds a proxy wired to cb's callbacks and a fresh
// EngineDelegate, and installs itself as that delegate's progress/point-check
// sink so CalculateRoute's engine-facing callbacks route back through the
// proxy's cancellation filter.
func NewDelegateProxy(cb Callbacks, onPointCheck func(geo.Point), timeout time.Duration, gui GuiQueue, debug bool) *DelegateProxy {
	p := &DelegateProxy{
		onReady:        cb.OnReady,
		onNeedMoreMaps: cb.OnNeedMoreMaps,
		onRemoveRoute:  cb.OnRemoveRoute,
		onProgress:     cb.OnProgress,
		onPointCheck:   onPointCheck,
		gui:            gui,
		debug:          debug,
	}
	p.delegate = newEngineDelegate(p.handleProgress, p.handlePointCheck, timeout)
	return p
}

// Delegate returns the EngineDelegate handle to pass into the Engine.
func (p *DelegateProxy) Delegate() *EngineDelegate { return p.delegate }

// Cancel sets the cancellation flag. Idempotent and safe to call at any
// time, including concurrently with in-flight callback delivery.
func (p *DelegateProxy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate.Cancel()
}

func (p *DelegateProxy) cancelled() bool {
	return p.delegate.IsCancelled()
}

// OnReady delivers the computed route, transferring ownership to whatever
// runs the scheduled task. Silently dropped if no callback was supplied or
// the proxy was cancelled before this call.
func (p *DelegateProxy) OnReady(route *Route, code routecode.Code) {
	if p.onReady == nil {
		return
	}
	p.mu.Lock()
	if p.cancelled() {
		p.mu.Unlock()
		return
	}
	cb := p.onReady
	p.gui.Post(func() { cb(route, code) })
	p.mu.Unlock()
}

// OnNeedMoreMaps delivers the absent-regions hint. Silently dropped if no
// callback was supplied or the proxy was cancelled before this call.
func (p *DelegateProxy) OnNeedMoreMaps(routeID uint64, absentRegions []string) {
	if p.onNeedMoreMaps == nil {
		return
	}
	p.mu.Lock()
	if p.cancelled() {
		p.mu.Unlock()
		return
	}
	cb := p.onNeedMoreMaps
	p.gui.Post(func() { cb(routeID, absentRegions) })
	p.mu.Unlock()
}

// OnRemoveRoute delivers a terminal non-NoError outcome. Silently dropped
// if no callback was supplied or the proxy was cancelled before this call.
func (p *DelegateProxy) OnRemoveRoute(code routecode.Code) {
	if p.onRemoveRoute == nil {
		return
	}
	p.mu.Lock()
	if p.cancelled() {
		p.mu.Unlock()
		return
	}
	cb := p.onRemoveRoute
	p.gui.Post(func() { cb(code) })
	p.mu.Unlock()
}

// handleProgress is wired into the EngineDelegate as its progress sink.
// The snapshot-and-schedule happens while still holding the lock: this
// prevents a race against Cancel setting the cancellation flag between the
// cancellation check and the GuiQueue.Post call.
func (p *DelegateProxy) handleProgress(progress float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.onProgress == nil || p.cancelled() {
		return
	}
	cb := p.onProgress
	p.gui.Post(func() { cb(progress) })
}

// handlePointCheck mirrors handleProgress but is only active when the
// dispatcher was built with debug point-checks enabled.
func (p *DelegateProxy) handlePointCheck(pt geo.Point) {
	if !p.debug {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.onPointCheck == nil || p.cancelled() {
		return
	}
	cb := p.onPointCheck
	p.gui.Post(func() { cb(pt) })
}
