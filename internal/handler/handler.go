package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler serves the liveness/readiness endpoint. It is the one
// handler allowed to reach straight into the pool rather than a repository,
// since "can we reach the database" is infrastructure, not domain data.
type HealthHandler struct {
	pool *pgxpool.Pool
}

func NewHealthHandler(pool *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// Health handles GET /health. Returns 200 with db:"up" once the pool can be
// pinged, 503 otherwise — callers (load balancers, orchestrators) should
// treat 503 as not-ready rather than retry the request itself.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "db": "down"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "up", "db": "up"})
}
