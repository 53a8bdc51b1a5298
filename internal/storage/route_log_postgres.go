package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgRouteLogRepository is the pgx-backed implementation of RouteLogRepository.
type pgRouteLogRepository struct {
	pool *pgxpool.Pool
}

// NewRouteLogRepository creates a RouteLogRepository backed by the given pool.
func NewRouteLogRepository(pool *pgxpool.Pool) RouteLogRepository {
	return &pgRouteLogRepository{pool: pool}
}

func (r *pgRouteLogRepository) InsertEntry(ctx context.Context, e RouteLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO route_dispatch_log
			(route_id, router_name, origin_geohash, result, distance_m, elapsed_sec, absent_regions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.RouteID, e.RouterName, e.OriginGeohash, e.Result, e.DistanceM, e.ElapsedSec, e.AbsentRegions)
	if err != nil {
		return fmt.Errorf("storage: InsertEntry: %w", err)
	}
	return nil
}

func (r *pgRouteLogRepository) RecentEntries(ctx context.Context, limit int) ([]RouteLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, route_id, router_name, origin_geohash, result, distance_m, elapsed_sec, absent_regions, created_at
		FROM route_dispatch_log
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: RecentEntries: %w", err)
	}
	defer rows.Close()

	var entries []RouteLogEntry
	for rows.Next() {
		var e RouteLogEntry
		if err := rows.Scan(&e.ID, &e.RouteID, &e.RouterName, &e.OriginGeohash, &e.Result, &e.DistanceM, &e.ElapsedSec, &e.AbsentRegions, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: RecentEntries: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: RecentEntries: %w", err)
	}
	return entries, nil
}
