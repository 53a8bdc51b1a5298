// Package storage holds the pgx-backed persistence layer: route-dispatch
// history, user accounts, and refresh tokens. Every repository method
// wraps its query in queryTimeout and wraps pgx errors with a "storage: "
// prefix so callers can distinguish persistence failures from domain ones.
package storage

import "time"

// queryTimeout is applied to every database query issued by this package.
const queryTimeout = 5 * time.Second
