package app

import (
	"log/slog"
	"time"

	"github.com/fitsync/platform/internal/auth"
	"github.com/fitsync/platform/internal/fingerprint"
	"github.com/fitsync/platform/internal/fraud"
	"github.com/fitsync/platform/internal/guard"
	"github.com/fitsync/platform/internal/handler"
	adminhandler "github.com/fitsync/platform/internal/handler/admin"
	"github.com/fitsync/platform/internal/policy"
	"github.com/fitsync/platform/internal/repository"
	"github.com/fitsync/platform/internal/service"
	"github.com/fitsync/platform/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Repositories
	authUserRepo := repository.NewPgAuthUserRepository()
	outboxRepo := repository.NewOutboxRepository()
	sessionStore := repository.NewPgSessionStore(pool, outboxRepo)

	// Session policy engine
	policies := policy.NewRegistry()
	detector := fraud.NewDetector()
	engine := session.NewEngine(sessionStore, policies, detector, logger)

	// Services
	fingerprints := fingerprint.NewService()
	loginLimiter := guard.NewRateLimiter(deps.LoginRateLimit, deps.LoginRateWindow)
	lockout := guard.NewPgLockout(pool)
	authSvc := service.NewAuthService(pool, authUserRepo, fingerprints, engine, jwtMgr, loginLimiter, lockout, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(engine)

	// Admin handlers
	sessionAdmin := adminhandler.NewSessionAdminHandler(pool, authUserRepo, engine)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Auth routes (no auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Authenticated routes. Every request revalidates its session, so a
	// policy eviction on one device takes effect on the next request there.
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(jwtMgr, engine))

		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.ListSessions)
			r.Get("/me", sessionHandler.GetStats)
			r.Delete("/", sessionHandler.TerminateAll)
			r.Delete("/devices", sessionHandler.TerminateDevice)
		})
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Authenticate(jwtMgr, engine))
		r.Use(auth.RequireRole(auth.AdminRoles()...))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", sessionAdmin.SearchUsers)
			r.Get("/{id}/sessions", sessionAdmin.ListUserSessions)
			r.Delete("/{id}/sessions", sessionAdmin.TerminateUserSessions)
		})
	})

	return r
}
