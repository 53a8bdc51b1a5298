package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/config"
	"github.com/qapac-nav/qapac-nav/internal/dispatch"
	"github.com/qapac-nav/qapac-nav/internal/engine"
	"github.com/qapac-nav/qapac-nav/internal/handler"
	"github.com/qapac-nav/qapac-nav/internal/middleware"
	"github.com/qapac-nav/qapac-nav/internal/service"
	"github.com/qapac-nav/qapac-nav/internal/statssink"
	"github.com/qapac-nav/qapac-nav/internal/storage"
)

// DBError represents a database-related error.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("db error during %q: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// App holds the application-level dependencies.
type App struct {
	DB         *pgxpool.Pool
	Router     *gin.Engine
	Dispatcher *dispatch.Dispatcher
	cfg        *config.Config
	log        zerolog.Logger
}

// New initializes the application: connects to Postgres, runs migrations,
// wires the dispatcher and its engine, and configures the HTTP engine with
// routes. The dispatcher's worker goroutine is running by the time New
// returns; Shutdown must be called to stop it cleanly.
func New(cfg *config.Config) (*App, error) {
	log := cfg.NewLogger()

	// --- Database pool ---
	poolCfg, err := pgxpool.ParseConfig(cfg.DBDSN)
	if err != nil {
		return nil, &DBError{Op: "parse_dsn", Err: err}
	}

	poolCfg.MaxConns = 20
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &DBError{Op: "connect", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, &DBError{Op: "ping", Err: err}
	}

	log.Info().Msg("database connection pool established")

	// --- Migrations ---
	if err := storage.RunMigrations(context.Background(), pool, log); err != nil {
		return nil, fmt.Errorf("app: run migrations: %w", err)
	}

	log.Info().Msg("database schema up to date")

	// --- Stats sinks: structured logs, Prometheus, and persisted history ---
	statssink.RegisterMetrics(prometheus.DefaultRegisterer)

	routeLogRepo := storage.NewRouteLogRepository(pool)
	sink := statssink.FanOut(
		statssink.NewLogSink(log),
		statssink.NewPrometheusSink(),
		storage.NewPostgresSink(routeLogRepo, log),
	)

	// --- Dispatcher and its initial engine ---
	dispatcher := dispatch.New(sink, cfg.ShowRouteDebugMarks, log)

	routingEngine := engine.NewHTTPRoutingEngine(cfg.DefaultRouterName, cfg.MapsAPIKey, cfg.MapsAPIURL, log)
	absentFetcher := engine.NewHTTPAbsentRegionsFetcher(cfg.AbsentFetcherURL, log)
	dispatcher.SetEngine(routingEngine, absentFetcher)

	// --- Auth dependencies ---
	usersRepo := storage.NewUsersRepository(pool)
	tokensRepo := storage.NewRefreshTokensRepository(pool)
	authService := service.NewAuthService(
		usersRepo, tokensRepo,
		cfg.JWTSecret,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)

	// --- HTTP engine ---
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.Timeout(10 * time.Second))

	healthH := handler.NewHealthHandler(pool)
	router.GET("/health", healthH.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ah := handler.NewAuthHandler(authService)
	adminH := handler.NewAdminHandler(usersRepo, routeLogRepo, dispatcher, cfg.AbsentFetcherURL, log)
	routeH := handler.NewRouteHandler(dispatcher, cfg.RouteTimeout, log)

	api := router.Group("/api/v1")
	{
		// Route calculation (public WebSocket stream).
		api.GET("/routes/stream", routeH.Stream)

		// Auth endpoints (no auth required to call these).
		auth := api.Group("/auth")
		{
			auth.POST("/login", ah.Login)
			auth.POST("/refresh", ah.Refresh)
			auth.POST("/logout", ah.Logout)
		}

		// Protected endpoints: admin role.
		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuth(authService))
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.POST("/users", adminH.CreateUser)
			admin.GET("/users", adminH.ListUsers)
			admin.GET("/users/:id", adminH.GetUser)
			admin.PUT("/users/:id", adminH.UpdateUser)
			admin.DELETE("/users/:id", adminH.DeactivateUser)

			admin.PUT("/engine", adminH.SetEngine)
			admin.POST("/engine/clear-state", adminH.ClearState)
			admin.GET("/route-log", adminH.RecentRouteLog)
		}
	}

	return &App{
		DB:         pool,
		Router:     router,
		Dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Log returns the shared logger every component in the app was built with.
func (a *App) Log() zerolog.Logger { return a.log }

// Shutdown gracefully stops the dispatcher's worker and closes the database
// pool. The dispatcher is closed first: Close blocks until its worker
// goroutine exits, so no request still in flight can be left trying to use
// a pool that has already been closed out from under it.
func (a *App) Shutdown() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
		a.log.Info().Msg("dispatcher stopped")
	}
	if a.DB != nil {
		a.DB.Close()
		a.log.Info().Msg("database connection pool closed")
	}
}
