package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

const uniqueViolation = "23505"

var _ UserRepo = (*PostgresUserRepo)(nil)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool DB
}

func NewPostgresUserRepo(pgpool DB, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresUserRepo) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "users"))
	return otel.Tracer("UserRepo").Start(ctx, name, trace.WithAttributes(attrs...))
}

func scanUser(row pgx.Row) (*types.User, error) {
	var (
		id uuid.UUID
		u  types.User
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Admin, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.String()
	return &u, nil
}

// FindByEmail implements user.UserRepo.
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (u *types.User, err error) {
	ctx, span := r.startSpan(ctx, "FindByEmail")
	defer span.End()
	defer recordQuery(ctx, "FindByEmail", time.Now(), &err)

	l := r.logger.With(slog.String("method", "FindByEmail"), slog.String("email", email))
	l.DebugContext(ctx, "Fetching user by email")

	query := `
        SELECT id, name, email, admin, password_hash, created_at
        FROM users
        WHERE email = $1
        ORDER BY created_at, id
        LIMIT 1`

	u, err = scanUser(r.pgpool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "User not found")
			return nil, types.ErrNotFound
		}
		l.ErrorContext(ctx, "Failed to query user by email", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return u, nil
}

// FindByID implements user.UserRepo.
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (u *types.User, err error) {
	ctx, span := r.startSpan(ctx, "FindByID", attribute.String("db.user.id", id))
	defer span.End()
	defer recordQuery(ctx, "FindByID", time.Now(), &err)

	l := r.logger.With(slog.String("method", "FindByID"), slog.String("userID", id))

	userID, err := uuid.Parse(id)
	if err != nil {
		l.DebugContext(ctx, "Malformed user id")
		return nil, types.ErrNotFound
	}

	query := `
        SELECT id, name, email, admin, password_hash, created_at
        FROM users
        WHERE id = $1`

	u, err = scanUser(r.pgpool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "User not found")
			return nil, types.ErrNotFound
		}
		l.ErrorContext(ctx, "Failed to query user by id", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return u, nil
}

// CreateUser implements user.UserRepo.
func (r *PostgresUserRepo) CreateUser(ctx context.Context, params types.CreateUserParams) (u *types.User, err error) {
	ctx, span := r.startSpan(ctx, "CreateUser")
	defer span.End()
	defer recordQuery(ctx, "CreateUser", time.Now(), &err)

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("email", params.Email))

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
        INSERT INTO users (name, email, admin, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`

	var id uuid.UUID
	err = r.pgpool.QueryRow(ctx, query,
		params.Name, params.Email, params.Admin, params.PasswordHash, createdAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			l.WarnContext(ctx, "Email already registered")
			span.SetStatus(codes.Error, "Duplicate email")
			return nil, fmt.Errorf("%w: email %s already registered", types.ErrConflict, params.Email)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("database error inserting user: %w", err)
	}

	l.InfoContext(ctx, "User created", slog.String("userID", id.String()))
	span.SetStatus(codes.Ok, "User created")
	return &types.User{
		ID:           id.String(),
		Name:         params.Name,
		Email:        params.Email,
		Admin:        params.Admin,
		PasswordHash: params.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

// DeleteUser implements user.UserRepo.
func (r *PostgresUserRepo) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, span := r.startSpan(ctx, "DeleteUser", attribute.String("db.user.id", id))
	defer span.End()
	defer recordQuery(ctx, "DeleteUser", time.Now(), &err)

	userID, err := uuid.Parse(id)
	if err != nil {
		return types.ErrNotFound
	}

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete user", slog.String("userID", id), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB delete failed")
		return fmt.Errorf("database error deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}

	span.SetStatus(codes.Ok, "User deleted")
	return nil
}

// SetAdmin implements user.UserRepo.
func (r *PostgresUserRepo) SetAdmin(ctx context.Context, id string, admin bool) (err error) {
	ctx, span := r.startSpan(ctx, "SetAdmin", attribute.String("db.user.id", id), attribute.Bool("user.admin", admin))
	defer span.End()
	defer recordQuery(ctx, "SetAdmin", time.Now(), &err)

	userID, err := uuid.Parse(id)
	if err != nil {
		return types.ErrNotFound
	}

	tag, err := r.pgpool.Exec(ctx, `UPDATE users SET admin = $1 WHERE id = $2`, admin, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update admin flag", slog.String("userID", id), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return fmt.Errorf("database error updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}

	span.SetStatus(codes.Ok, "Admin flag updated")
	return nil
}

// Ping implements user.UserRepo.
func (r *PostgresUserRepo) Ping(ctx context.Context) error {
	return r.pgpool.Ping(ctx)
}
