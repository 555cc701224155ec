package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	database "github.com/FACorreiaa/mic-data-portal/app/db"
	"github.com/FACorreiaa/mic-data-portal/app/session"
	"github.com/FACorreiaa/mic-data-portal/config"
	"github.com/FACorreiaa/mic-data-portal/internal/api/auth"
	"github.com/FACorreiaa/mic-data-portal/internal/api/health"
	"github.com/FACorreiaa/mic-data-portal/internal/api/pages"
	"github.com/FACorreiaa/mic-data-portal/internal/api/user"
	"github.com/FACorreiaa/mic-data-portal/internal/router"
	"github.com/FACorreiaa/mic-data-portal/internal/view"
	"github.com/FACorreiaa/mic-data-portal/web"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	UserRepo    user.UserRepo
	UserService user.UserService
	AuthHandler *auth.HandlerImpl
	Sessions    *session.Manager
	Router      http.Handler

	closers []func(ctx context.Context) error
}

// NewContainer connects the credential store and session store and wires the
// HTTP surface on top of them.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	repo, err := c.openUserRepo(ctx)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	c.UserRepo = repo

	var redisClient redis.UniversalClient
	if cfg.Session.Store == config.SessionStoreRedis {
		client, err := session.InitRedis(cfg.Repositories.Redis.URL, logger)
		if err != nil {
			c.Close(context.Background())
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		if !database.WaitForDB(ctx, database.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}), logger.With(slog.String("store", "redis"))) {
			c.Close(context.Background())
			return nil, errors.New("redis not ready after waiting")
		}
		redisClient = client
	}

	store, err := session.NewStore(cfg.Session, redisClient, logger)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	c.Sessions = session.NewManager(store, cfg.Session.Name, logger)

	views, err := view.NewRenderer(web.Views(), cfg.View.DefaultLayout, logger)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	c.UserService = user.NewUserService(repo, hasher, logger)

	authService := auth.NewAuthService(repo, hasher, logger)
	codec := auth.NewJWTIdentityCodec(repo, cfg.Session.Secret, cfg.Session.SessionTTL, cfg.Auth.Issuer, logger)
	limiter := auth.NewAttemptLimiter(cfg.Auth.MaxFailedAttempts, cfg.Auth.LockoutWindow)
	c.AuthHandler = auth.NewHandlerImpl(authService, codec, c.Sessions, limiter, views, logger)

	c.Router = router.SetupRouter(&router.Config{
		AuthHandler:    c.AuthHandler,
		PagesHandler:   pages.NewHandlerImpl(views, logger),
		HealthHandler:  health.NewHandlerImpl(repo, logger),
		Decorator:      auth.Decorator(c.Sessions, codec, logger),
		Static:         web.Public(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		LoginRateLimit: cfg.Auth.LoginRateLimit,
		Timeout:        cfg.Server.Timeout,
		Logger:         logger,
	})

	return c, nil
}

// NewUserTool opens only the credential store, for out-of-band user
// management.
func NewUserTool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	repo, err := c.openUserRepo(ctx)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	c.UserRepo = repo
	c.UserService = user.NewUserService(repo, auth.NewBcryptHasher(cfg.Auth.BcryptCost), logger)
	return c, nil
}

// openUserRepo connects to the configured store, waits for it and applies
// the migrations.
func (c *Container) openUserRepo(ctx context.Context) (user.UserRepo, error) {
	cfg, logger := c.Config, c.Logger

	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	switch dbConfig.Driver {
	case config.DriverMongo:
		client, err := database.InitMongo(dbConfig.ConnectionURL, logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Disconnect)
		if !database.WaitForDB(ctx, database.MongoPinger(client), logger) {
			return nil, errors.New("database not ready after waiting")
		}
		if err := database.RunMigrations(dbConfig, logger); err != nil {
			return nil, err
		}
		return user.NewMongoUserRepo(client.Database(dbConfig.Database), logger), nil

	case config.DriverPostgres:
		pool, err := database.InitPostgres(dbConfig.ConnectionURL, logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { pool.Close(); return nil })
		if !database.WaitForDB(ctx, pool, logger) {
			return nil, errors.New("database not ready after waiting")
		}
		if err := database.RunMigrations(dbConfig, logger); err != nil {
			return nil, err
		}
		return user.NewPostgresUserRepo(pool, logger), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConfig.Driver)
	}
}

// Close releases all resources held by the container, newest first.
func (c *Container) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			c.Logger.Warn("Error releasing resource", slog.Any("error", err))
		}
	}
	c.closers = nil
}
