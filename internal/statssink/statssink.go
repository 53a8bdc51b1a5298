// Package statssink provides dispatch.StatsSink implementations: one that
// logs every record as a structured event, one that exposes aggregate
// Prometheus metrics derived from the record's "result" field, and a fan-out
// that feeds both (or any set of sinks) from a single Emit call.
package statssink

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/dispatch"
)

// LogSink emits every statistics record as a structured zerolog event, one
// field per record key, at Info level. It never drops a record.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(record map[string]string) {
	ev := s.log.Info()
	for k, v := range record {
		ev = ev.Str(k, v)
	}
	ev.Msg("route dispatch statistics")
}

const component = "route_dispatch"

var (
	resultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "results_total",
			Help:      "Count of completed route calculations by router and result code.",
		},
		[]string{"router", "result"},
	)
	distanceMeters = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: component,
			Name:      "distance_meters",
			Help:      "Computed route distance in meters, by router. Only observed on success.",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
		},
		[]string{"router"},
	)
	elapsedSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: component,
			Name:      "elapsed_seconds",
			Help:      "Wall-clock seconds spent computing a route, by router.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"router"},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers the package's Prometheus collectors against reg.
// Safe to call more than once; only the first call has any effect.
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(resultsTotal, distanceMeters, elapsedSeconds)
	})
}

// PrometheusSink turns each statistics record into metric observations. It
// relies on RegisterMetrics having been called against whatever registry
// the process exposes on /metrics.
type PrometheusSink struct{}

func NewPrometheusSink() *PrometheusSink { return &PrometheusSink{} }

func (s *PrometheusSink) Emit(record map[string]string) {
	router := record["name"]
	result := record["result"]

	resultsTotal.WithLabelValues(router, result).Inc()

	if elapsed, ok := record["elapsed"]; ok {
		if v, err := strconv.ParseFloat(elapsed, 64); err == nil {
			elapsedSeconds.WithLabelValues(router).Observe(v)
		}
	}
	if distance, ok := record["distance"]; ok {
		if v, err := strconv.ParseFloat(distance, 64); err == nil {
			distanceMeters.WithLabelValues(router).Observe(v)
		}
	}
}

// fanOutSink dispatches one record to every wrapped sink in order. A panic
// or failure in one sink must never stop the others from receiving the
// record, so each Emit call runs independently.
type fanOutSink struct {
	sinks []dispatch.StatsSink
}

// FanOut combines multiple sinks into one. Nil sinks are skipped.
func FanOut(sinks ...dispatch.StatsSink) dispatch.StatsSink {
	nonNil := make([]dispatch.StatsSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	if len(nonNil) == 0 {
		return dispatch.NopSink{}
	}
	return &fanOutSink{sinks: nonNil}
}

func (f *fanOutSink) Emit(record map[string]string) {
	for _, s := range f.sinks {
		func() {
			defer func() { _ = recover() }()
			s.Emit(record)
		}()
	}
}
