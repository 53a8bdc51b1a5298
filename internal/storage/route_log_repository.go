package storage

import (
	"context"
	"time"
)

// RouteLogEntry is one terminal outcome of a route calculation, as recorded
// in route_dispatch_log.
type RouteLogEntry struct {
	ID            int64
	RouteID       uint64
	RouterName    string
	OriginGeohash string
	Result        string
	DistanceM     float64
	ElapsedSec    float64
	AbsentRegions []string
	CreatedAt     time.Time
}

// RouteLogRepository persists terminal route-dispatch outcomes for later
// querying, beyond the in-process logging and statistics the dispatcher
// already emits.
type RouteLogRepository interface {
	// InsertEntry records one terminal outcome.
	InsertEntry(ctx context.Context, e RouteLogEntry) error

	// RecentEntries returns the most recent entries, newest first, bounded
	// by limit.
	RecentEntries(ctx context.Context, limit int) ([]RouteLogEntry, error)
}
