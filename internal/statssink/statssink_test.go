package statssink

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/dispatch"
)

type countingSink struct {
	calls int
}

func (c *countingSink) Emit(map[string]string) { c.calls++ }

func TestFanOutDispatchesToEverySink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	sink := FanOut(a, b, nil)

	sink.Emit(map[string]string{"name": "test"})

	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected both sinks to receive the record, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestFanOutWithNoSinksIsNop(t *testing.T) {
	sink := FanOut()
	if _, ok := sink.(dispatch.NopSink); !ok {
		t.Fatalf("expected NopSink when no sinks given, got %T", sink)
	}
}

func TestLogSinkDoesNotPanicOnEmptyRecord(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())
	sink.Emit(map[string]string{})
}

func TestPrometheusSinkRecordsWithoutPanicking(t *testing.T) {
	sink := NewPrometheusSink()
	sink.Emit(map[string]string{"name": "test", "result": "NoError", "elapsed": "1.25", "distance": "500"})
	sink.Emit(map[string]string{"name": "test", "result": "InternalError", "exception": "boom"})
}
