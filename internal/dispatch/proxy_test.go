package dispatch

import (
	"testing"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
)

func TestDelegateProxyFiltersAfterCancel(t *testing.T) {
	fired := false
	cb := Callbacks{
		OnReady: func(route *Route, code routecode.Code) { fired = true },
	}
	p := NewDelegateProxy(cb, nil, time.Second, &syncGuiQueue{}, false)

	p.Cancel()
	p.OnReady(&Route{}, routecode.NoError)

	if fired {
		t.Fatal("OnReady must not schedule anything once cancelled")
	}
}

func TestDelegateProxyNilCallbackIsNoop(t *testing.T) {
	p := NewDelegateProxy(Callbacks{}, nil, time.Second, &syncGuiQueue{}, false)

	// Must not panic on a nil callback.
	p.OnReady(&Route{}, routecode.NoError)
	p.OnNeedMoreMaps(1, nil)
	p.OnRemoveRoute(routecode.RouteNotFound)
}

func TestDelegateProxyProgressFilteredAfterCancel(t *testing.T) {
	var got float64 = -1
	cb := Callbacks{
		OnProgress: func(p float64) { got = p },
	}
	p := NewDelegateProxy(cb, nil, time.Second, &syncGuiQueue{}, false)

	p.Delegate().ReportProgress(0.5)
	if got != 0.5 {
		t.Fatalf("expected progress delivered before cancel, got %v", got)
	}

	p.Cancel()
	p.Delegate().ReportProgress(0.75)
	if got != 0.5 {
		t.Fatal("progress reported after cancel must not reach the callback")
	}
}

func TestDelegateProxyPointCheckRequiresDebug(t *testing.T) {
	called := false
	onPointCheck := func(pt geo.Point) { called = true }

	p := NewDelegateProxy(Callbacks{}, onPointCheck, time.Second, &syncGuiQueue{}, false)
	p.Delegate().ReportPointCheck(geo.Point{X: 1, Y: 2})
	if called {
		t.Fatal("point-check callback must not fire when debug is disabled")
	}

	p2 := NewDelegateProxy(Callbacks{}, onPointCheck, time.Second, &syncGuiQueue{}, true)
	p2.Delegate().ReportPointCheck(geo.Point{X: 1, Y: 2})
	if !called {
		t.Fatal("point-check callback should fire when debug is enabled")
	}
}
