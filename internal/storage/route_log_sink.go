package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/dispatch"
)

// geohashPrecision controls the spatial resolution of the persisted origin
// hash: 7 characters is roughly 150m, enough to cluster nearby requests
// without exposing exact coordinates in aggregate reporting.
const geohashPrecision = 7

// PostgresSink adapts RouteLogRepository to dispatch.StatsSink: every
// statistics record the dispatcher emits becomes one row in
// route_dispatch_log. The insert runs synchronously on the caller's
// goroutine, bounded by a 3-second timeout. A failure to persist is logged
// and swallowed — the dispatcher's own LogSink already captured the record,
// so a database hiccup never fails route delivery. The row holds what the
// record holds: the result code before any NeedMoreMaps upgrade, and no
// absent regions (AbsentRegions is left nil).
type PostgresSink struct {
	repo RouteLogRepository
	log  zerolog.Logger
}

func NewPostgresSink(repo RouteLogRepository, log zerolog.Logger) *PostgresSink {
	return &PostgresSink{repo: repo, log: log}
}

func (s *PostgresSink) Emit(record map[string]string) {
	entry := RouteLogEntry{
		RouterName: record["name"],
		Result:     record["result"],
	}

	if v, err := strconv.ParseUint(record["routeId"], 10, 64); err == nil {
		entry.RouteID = v
	}
	if v, err := strconv.ParseFloat(record["distance"], 64); err == nil {
		entry.DistanceM = v
	}
	if v, err := strconv.ParseFloat(record["elapsed"], 64); err == nil {
		entry.ElapsedSec = v
	}
	if lat, errLat := strconv.ParseFloat(record["startLat"], 64); errLat == nil {
		if lon, errLon := strconv.ParseFloat(record["startLon"], 64); errLon == nil {
			entry.OriginGeohash = geohash.EncodeWithPrecision(lat, lon, geohashPrecision)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.repo.InsertEntry(ctx, entry); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist route dispatch log entry")
	}
}

var _ dispatch.StatsSink = (*PostgresSink)(nil)
