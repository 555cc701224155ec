package session

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/mic-data-portal/config"
)

// Options builds the cookie options shared by both stores.
func Options(cfg config.SessionConfig) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookieStore keeps the whole session in a signed cookie.
func NewCookieStore(cfg config.SessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = Options(cfg)
	store.MaxAge(store.Options.MaxAge)
	return store
}

// NewStore selects the session store named by cfg.Store. The redis client is
// only used for the redis store and may be nil otherwise.
func NewStore(cfg config.SessionConfig, client redis.UniversalClient, logger *slog.Logger) (sessions.Store, error) {
	switch cfg.Store {
	case config.SessionStoreCookie:
		logger.Info("Using cookie session store")
		return NewCookieStore(cfg), nil
	case config.SessionStoreRedis:
		if client == nil {
			return nil, fmt.Errorf("redis session store requires a redis client")
		}
		logger.Info("Using redis session store")
		return NewRedisStore(client, Options(cfg), []byte(cfg.Secret)), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// InitRedis parses a redis:// URL into a client.
func InitRedis(url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Error("Failed to parse redis url", slog.Any("error", err))
		return nil, fmt.Errorf("failed parsing redis url: %w", err)
	}
	logger.Info("Redis client initialized", slog.String("addr", opts.Addr))
	return redis.NewClient(opts), nil
}
