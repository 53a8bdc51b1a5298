package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/dispatch"
	"github.com/qapac-nav/qapac-nav/internal/engine"
	"github.com/qapac-nav/qapac-nav/internal/service"
	"github.com/qapac-nav/qapac-nav/internal/storage"
)

// AdminHandler holds dependencies for admin endpoints: user management and
// the control plane that swaps the live routing engine or resets its state.
type AdminHandler struct {
	usersRepo        storage.UsersRepository
	routeLogRepo     storage.RouteLogRepository
	dispatcher       *dispatch.Dispatcher
	absentFetcherURL string
	log              zerolog.Logger
}

// NewAdminHandler creates an AdminHandler with the given dependencies.
// absentFetcherURL is attached to every engine installed through SetEngine;
// an empty value disables the absent-regions fetcher entirely.
func NewAdminHandler(usersRepo storage.UsersRepository, routeLogRepo storage.RouteLogRepository, dispatcher *dispatch.Dispatcher, absentFetcherURL string, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		usersRepo:        usersRepo,
		routeLogRepo:     routeLogRepo,
		dispatcher:       dispatcher,
		absentFetcherURL: absentFetcherURL,
		log:              log,
	}
}

// ---------------------------------------------------------------------------
// User management
// ---------------------------------------------------------------------------

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone"`
	Role     string `json:"role" binding:"required,oneof=dispatcher admin"`
}

// CreateUser handles POST /api/v1/admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := &storage.User{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Role:         req.Role,
	}

	created, err := h.usersRepo.CreateUser(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        created.ID,
		"username":  created.Username,
		"full_name": created.FullName,
		"phone":     created.Phone,
		"role":      created.Role,
		"active":    created.Active,
	})
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	role := c.Query("role")
	activeOnly := c.DefaultQuery("active", "true") == "true"

	users, err := h.usersRepo.ListUsers(c.Request.Context(), role, activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	out := make([]gin.H, len(users))
	for i, u := range users {
		out[i] = gin.H{
			"id":        u.ID,
			"username":  u.Username,
			"full_name": u.FullName,
			"phone":     u.Phone,
			"role":      u.Role,
			"active":    u.Active,
		}
	}

	c.JSON(http.StatusOK, out)
}

// GetUser handles GET /api/v1/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	user, err := h.usersRepo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"full_name":  user.FullName,
		"phone":      user.Phone,
		"role":       user.Role,
		"active":     user.Active,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	})
}

type updateUserRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Role     string `json:"role" binding:"omitempty,oneof=dispatcher admin"`
	Active   *bool  `json:"active"`
}

// UpdateUser handles PUT /api/v1/admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	existing, err := h.usersRepo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query user"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FullName != "" {
		existing.FullName = req.FullName
	}
	if req.Phone != "" {
		existing.Phone = req.Phone
	}
	if req.Role != "" {
		existing.Role = req.Role
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := h.usersRepo.UpdateUser(c.Request.Context(), existing); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        existing.ID,
		"username":  existing.Username,
		"full_name": existing.FullName,
		"phone":     existing.Phone,
		"role":      existing.Role,
		"active":    existing.Active,
	})
}

// DeactivateUser handles DELETE /api/v1/admin/users/:id
func (h *AdminHandler) DeactivateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.usersRepo.DeactivateUser(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate user"})
		return
	}

	c.Status(http.StatusNoContent)
}

// parseID extracts and validates a positive int32 :id path parameter.
func parseID(c *gin.Context) (int32, bool) {
	raw := c.Param("id")
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return int32(v), true
}

// ---------------------------------------------------------------------------
// Routing engine control plane
// ---------------------------------------------------------------------------

type setEngineRequest struct {
	Name   string `json:"name" binding:"required"`
	APIKey string `json:"apiKey" binding:"required"`
	APIURL string `json:"apiUrl"`
}

// SetEngine handles PUT /api/v1/admin/engine. It swaps the dispatcher's
// live routing backend; any request in flight on the previous engine is
// cancelled by Dispatcher.SetEngine before this handler returns.
func (h *AdminHandler) SetEngine(c *gin.Context) {
	var req setEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eng := engine.NewHTTPRoutingEngine(req.Name, req.APIKey, req.APIURL, h.log)
	fetcher := engine.NewHTTPAbsentRegionsFetcher(h.absentFetcherURL, h.log)

	h.dispatcher.SetEngine(eng, fetcher)
	h.log.Info().Str("engine", req.Name).Msg("routing engine swapped")

	c.Status(http.StatusNoContent)
}

// ClearState handles POST /api/v1/admin/engine/clear-state. It asks the
// dispatcher's worker to reset the installed engine's internal state on its
// next wake-up.
func (h *AdminHandler) ClearState(c *gin.Context) {
	h.dispatcher.ClearState()
	c.Status(http.StatusNoContent)
}

const (
	defaultRouteLogLimit = 50
	maxRouteLogLimit     = 500
)

// RecentRouteLog handles GET /api/v1/admin/route-log. Query param "limit"
// caps how many of the most recent persisted outcomes are returned,
// defaulting to defaultRouteLogLimit and capped at maxRouteLogLimit.
func (h *AdminHandler) RecentRouteLog(c *gin.Context) {
	limit := defaultRouteLogLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}
	if limit > maxRouteLogLimit {
		limit = maxRouteLogLimit
	}

	entries, err := h.routeLogRepo.RecentEntries(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query route log"})
		return
	}

	out := make([]gin.H, len(entries))
	for i, e := range entries {
		out[i] = gin.H{
			"routeId":       e.RouteID,
			"router":        e.RouterName,
			"originGeohash": e.OriginGeohash,
			"result":        e.Result,
			"distanceM":     e.DistanceM,
			"elapsedSec":    e.ElapsedSec,
			"absentRegions": e.AbsentRegions,
			"createdAt":     e.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, out)
}
