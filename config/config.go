package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

const (
	DriverMongo    = "mongodb"
	DriverPostgres = "postgres"

	SessionStoreCookie = "cookie"
	SessionStoreRedis  = "redis"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Server struct {
		HTTPPort    string        `mapstructure:"HTTPPort"`
		Timeout     time.Duration `mapstructure:"HTTPTimeout"`
		MetricsPort string        `mapstructure:"metricsPort"`
	} `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	View    ViewConfig    `mapstructure:"view"`
	Auth    AuthConfig    `mapstructure:"auth"`
	CORS    struct {
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"cors"`
	Repositories struct {
		Driver  string `mapstructure:"driver"`
		MongoDB struct {
			URI      string `mapstructure:"uri"`
			Database string `mapstructure:"database"`
		} `mapstructure:"mongodb"`
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
		Redis struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"redis"`
	} `mapstructure:"repositories"`
}

// SessionConfig carries the session secret and lifetime.
type SessionConfig struct {
	Name       string        `mapstructure:"name"`
	Secret     string        `mapstructure:"secret"`
	SessionTTL time.Duration `mapstructure:"sessionTTL"`
	Store      string        `mapstructure:"store"`
	Secure     bool          `mapstructure:"secure"`
}

type ViewConfig struct {
	DefaultLayout string `mapstructure:"defaultLayout"`
}

type AuthConfig struct {
	Issuer            string        `mapstructure:"issuer"`
	BcryptCost        int           `mapstructure:"bcryptCost"`
	MaxFailedAttempts int           `mapstructure:"maxFailedAttempts"`
	LockoutWindow     time.Duration `mapstructure:"lockoutWindow"`
	LoginRateLimit    int           `mapstructure:"loginRateLimit"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Env overrides: repositories.mongodb.uri -> REPOSITORIES_MONGODB_URI
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.HTTPPort", "PORT")
	_ = v.BindEnv("repositories.mongodb.uri", "MONGO_URI")
	_ = v.BindEnv("session.secret", "SESSION_SECRET")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret must not be empty"))
	}
	if c.Session.SessionTTL < 0 {
		errs = append(errs, errors.New("session.sessionTTL must not be negative"))
	}
	if c.Session.Name == "" {
		errs = append(errs, errors.New("session.name must not be empty"))
	}
	switch c.Session.Store {
	case SessionStoreCookie:
	case SessionStoreRedis:
		if c.Repositories.Redis.URL == "" {
			errs = append(errs, errors.New("repositories.redis.url is required for the redis session store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.store %q", c.Session.Store))
	}
	if c.View.DefaultLayout == "" {
		errs = append(errs, errors.New("view.defaultLayout must not be empty"))
	}
	switch c.Repositories.Driver {
	case DriverMongo:
		if c.Repositories.MongoDB.URI == "" || c.Repositories.MongoDB.Database == "" {
			errs = append(errs, errors.New("repositories.mongodb.uri and database are required"))
		}
	case DriverPostgres:
		if c.Repositories.Postgres.Host == "" {
			errs = append(errs, errors.New("repositories.postgres.host is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown repositories.driver %q", c.Repositories.Driver))
	}
	return errors.Join(errs...)
}
