package router

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	appLogger "github.com/FACorreiaa/mic-data-portal/app/logger"
	appMiddleware "github.com/FACorreiaa/mic-data-portal/app/middleware"
	"github.com/FACorreiaa/mic-data-portal/internal/api/auth"
	"github.com/FACorreiaa/mic-data-portal/internal/api/health"
	"github.com/FACorreiaa/mic-data-portal/internal/api/pages"
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler   *auth.HandlerImpl
	PagesHandler  *pages.HandlerImpl
	HealthHandler *health.HandlerImpl
	// Decorator attaches the session identity and flash messages.
	Decorator      func(http.Handler) http.Handler
	Static         fs.FS
	AllowedOrigins []string
	// LoginRateLimit is the number of login POSTs allowed per client IP per
	// minute; zero disables the limit.
	LoginRateLimit int
	Timeout        time.Duration
	Logger         *slog.Logger
}

// SetupRouter initializes and configures the main application router.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appLogger.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	// before routing so "_method" decides which route matches
	r.Use(appMiddleware.MethodOverride)
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}
	r.Use(middleware.Compress(5, "text/html", "text/css", "application/javascript", "application/json"))

	// Static assets
	fileServer := http.FileServer(http.FS(cfg.Static))
	for _, dir := range []string{"/css/*", "/js/*", "/img/*"} {
		r.Handle(dir, fileServer)
	}

	// Health check, callable cross-origin
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/ping", cfg.HealthHandler.Ping)
	})

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.SecureHeaders)
		r.Use(cfg.Decorator)

		r.Get("/", cfg.PagesHandler.Index)
		r.Get("/vitek", cfg.PagesHandler.Vitek)

		r.Get(auth.LoginPath, cfg.AuthHandler.LoginForm)
		login := r.With()
		if cfg.LoginRateLimit > 0 {
			login = r.With(httprate.LimitByIP(cfg.LoginRateLimit, time.Minute))
		}
		login.Post(auth.LoginPath, cfg.AuthHandler.Login)

		r.Post(auth.LogoutPath, cfg.AuthHandler.Logout)
		r.Delete(auth.LogoutPath, cfg.AuthHandler.Logout)
	})

	return r
}
