package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ovialab/admin-portal/internal/api/handler"
	"github.com/ovialab/admin-portal/internal/api/middleware"
	"github.com/ovialab/admin-portal/internal/core/service"
	"github.com/ovialab/admin-portal/internal/infrastructure/config"
	mongodb "github.com/ovialab/admin-portal/internal/infrastructure/db/mongo"
	redisdb "github.com/ovialab/admin-portal/internal/infrastructure/db/redis"
	"github.com/ovialab/admin-portal/internal/infrastructure/queue"
)

// NewRouter builds and returns the Echo instance with all routes registered.
// Background workers stop when ctx is cancelled.
func NewRouter(ctx context.Context, cfg *config.Config, db *mongo.Database, rdb *redis.Client, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("portal"))
	e.Use(middleware.SecurityHeaders())

	// --- Dependencies ---
	sessionRepo := redisdb.NewSessionRepository(rdb)
	authority := service.NewSessionAuthority(sessionRepo, cfg.Session.GraceWindow, log)
	profileRepo := mongodb.NewProfileRepository(db)
	roleRepo := mongodb.NewRoleRepository(db)
	tracker := redisdb.NewLivenessTracker(rdb, cfg.Session.HeartbeatTTL)
	replay := redisdb.NewReplayGuard(rdb)

	// Publications go through the sharded dispatcher so per-user event order
	// is preserved even under concurrent forced logouts.
	feed := queue.NewDispatcher(0, redisdb.NewChangeFeed(rdb, log), log)
	feed.Start(ctx)

	// --- Access gate (everything not public goes through it) ---
	e.Use(middleware.Gate(middleware.GateConfig{
		Authority:  authority,
		Profiles:   profileRepo,
		CookieName: cfg.Session.CookieName,
		Log:        log,
	}))

	verifier := handler.NewIdentityVerifier(cfg.JWTSecret)
	sessionHandler := handler.NewSessionHandler(authority, verifier, replay, handler.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
	})
	heartbeatHandler := handler.NewHeartbeatHandler(tracker, log)
	adminHandler := handler.NewAdminHandler(profileRepo, feed, log)
	roleHandler := handler.NewRoleHandler(roleRepo)
	watchHandler := handler.NewWatchHandler(feed, log)

	// --- Session lifecycle ---
	e.POST("/auth/session", sessionHandler.Create)
	e.DELETE("/auth/session", sessionHandler.Delete)
	e.POST("/v1/session/heartbeat", heartbeatHandler.Receive)
	e.GET("/v1/session/watch", watchHandler.Watch)

	// --- Role definitions ---
	e.GET("/v1/roles", roleHandler.List)

	// --- Administration (gate enforces admin-only on /v1/admin) ---
	e.POST("/v1/admin/users/:id/force-logout", adminHandler.ForceLogout)

	// --- Redirect landing stubs ---
	e.GET(middleware.LoginPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"page":   "login",
			"reason": c.QueryParam("reason"),
		})
	})
	e.GET(middleware.UnauthorizedPath, func(c echo.Context) error {
		return c.JSON(http.StatusForbidden, map[string]string{"page": "unauthorized"})
	})

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
