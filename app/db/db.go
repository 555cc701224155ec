package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	uuid "github.com/vgarvardt/pgx-google-uuid/v5"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/FACorreiaa/mic-data-portal/config"
)

//go:embed migrations/mongodb/*.json migrations/postgres/*.sql
var migrationFS embed.FS

const defaultRetries = 5

// DatabaseConfig describes how to reach the credential store.
type DatabaseConfig struct {
	Driver string
	// ConnectionURL is what the driver connects with.
	ConnectionURL string
	// MigrationURL is what golang-migrate connects with; for MongoDB it carries
	// the database name in the path.
	MigrationURL string
	Database     string
}

// Pinger is anything that can report whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// MongoPinger pings the primary of a Mongo deployment.
func MongoPinger(client *mongo.Client) Pinger {
	return PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
}

// WaitForDB waits for the credential store to answer pings.
func WaitForDB(ctx context.Context, db Pinger, logger *slog.Logger) bool {
	maxAttempts := defaultRetries
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err := db.Ping(ctx)
		if err == nil {
			logger.InfoContext(ctx, "Database connection successful")
			return true
		}

		waitDuration := time.Duration(attempts) * 200 * time.Millisecond
		logger.WarnContext(ctx, "Database ping failed, retrying...",
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("wait_duration", waitDuration),
			slog.String("error", err.Error()),
		)
		if attempts < maxAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(waitDuration):
			}
		}
	}
	logger.ErrorContext(ctx, "Database connection failed after multiple retries")
	return false
}

// RunMigrations applies the embedded migrations for the configured driver.
// Both drivers create the unique index on users.email.
func RunMigrations(dbConfig *DatabaseConfig, logger *slog.Logger) error {
	logger.Info("Running database migrations...", slog.String("driver", dbConfig.Driver))

	sourceDriver, err := iofs.New(migrationFS, "migrations/"+dbConfig.Driver)
	if err != nil {
		logger.Error("Failed to create migration source driver", slog.Any("error", err))
		return fmt.Errorf("failed to create migration source driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dbConfig.MigrationURL)
	if err != nil {
		logger.Error("Failed to initialize migrate instance", slog.Any("error", err))
		return fmt.Errorf("failed to initialize migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Error closing migration source", slog.Any("error", srcErr))
		}
		if dbErr != nil {
			logger.Warn("Error closing migration database connection", slog.Any("error", dbErr))
		}
	}()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error("Failed to apply migrations", slog.Any("error", upErr))
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		logger.Warn("Could not determine migration version", slog.Any("error", err))
	case dirty:
		logger.Error("DATABASE MIGRATION STATE IS DIRTY!", slog.Uint64("version", uint64(version)))
		return fmt.Errorf("database migration state is dirty at version %d", version)
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info("No new migrations to apply.", slog.Uint64("current_version", uint64(version)))
	default:
		logger.Info("Database migrations applied successfully.", slog.Uint64("new_version", uint64(version)))
	}
	return nil
}

// NewDatabaseConfig derives connection and migration URLs from configuration.
func NewDatabaseConfig(cfg *config.Config, logger *slog.Logger) (*DatabaseConfig, error) {
	if cfg == nil {
		return nil, errors.New("database configuration is missing")
	}

	switch cfg.Repositories.Driver {
	case config.DriverMongo:
		return newMongoConfig(cfg, logger)
	case config.DriverPostgres:
		return newPostgresConfig(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Repositories.Driver)
	}
}

func newMongoConfig(cfg *config.Config, logger *slog.Logger) (*DatabaseConfig, error) {
	mc := cfg.Repositories.MongoDB
	if mc.URI == "" || mc.Database == "" {
		errMsg := "MongoDB configuration is missing or invalid"
		logger.Error(errMsg)
		return nil, errors.New(errMsg)
	}

	u, err := url.Parse(mc.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid mongodb uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return nil, fmt.Errorf("invalid mongodb uri scheme %q", u.Scheme)
	}
	migrationURL := *u
	migrationURL.Path = "/" + mc.Database

	logger.Info("Database connection URL generated", slog.String("host", u.Host), slog.String("database", mc.Database))
	return &DatabaseConfig{
		Driver:        config.DriverMongo,
		ConnectionURL: mc.URI,
		MigrationURL:  migrationURL.String(),
		Database:      mc.Database,
	}, nil
}

func newPostgresConfig(cfg *config.Config, logger *slog.Logger) (*DatabaseConfig, error) {
	pg := cfg.Repositories.Postgres
	if pg.Host == "" {
		errMsg := "Postgres configuration is missing or invalid"
		logger.Error(errMsg)
		return nil, errors.New(errMsg)
	}

	sslMode := pg.SSLMODE
	if sslMode == "" {
		sslMode = "disable"
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("timezone", "utc")

	connURL := url.URL{
		Scheme:   "postgresql", // postgresql:// for migrate compatibility
		User:     url.UserPassword(pg.Username, pg.Password),
		Host:     fmt.Sprintf("%s:%s", pg.Host, pg.Port),
		Path:     pg.DB,
		RawQuery: query.Encode(),
	}

	connStr := connURL.String()
	logger.Info("Database connection URL generated", slog.String("host", connURL.Host), slog.String("database", connURL.Path))
	return &DatabaseConfig{
		Driver:        config.DriverPostgres,
		ConnectionURL: connStr,
		MigrationURL:  connStr,
		Database:      pg.DB,
	}, nil
}

// InitMongo connects a Mongo client. The driver connects lazily, so
// reachability is checked separately with WaitForDB.
func InitMongo(connectionURL string, logger *slog.Logger) (*mongo.Client, error) {
	logger.Info("Initializing MongoDB client...")
	client, err := mongo.Connect(options.Client().
		ApplyURI(connectionURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second))
	if err != nil {
		logger.Error("Failed to create MongoDB client", slog.Any("error", err))
		return nil, fmt.Errorf("failed creating mongo client: %w", err)
	}
	logger.Info("MongoDB client initialized")
	return client, nil
}

// InitPostgres initializes the pgxpool connection pool.
func InitPostgres(connectionURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("Initializing database connection pool...")
	cfg, err := pgxpool.ParseConfig(connectionURL)
	if err != nil {
		logger.Error("Failed to parse database config", slog.Any("error", err))
		return nil, fmt.Errorf("failed parsing db config: %w", err)
	}

	// Register UUID type handler after connecting
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		uuid.Register(conn.TypeMap())
		logger.DebugContext(ctx, "Registered UUID type handler")
		return nil
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to create database connection pool", slog.Any("error", err))
		return nil, fmt.Errorf("failed creating db pool: %w", err)
	}

	logger.Info("Database connection pool initialized")
	return pool, nil
}
