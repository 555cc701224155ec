package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

// Ensure implementation satisfies the interface
var _ UserService = (*UserServiceImpl)(nil)

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// UserService manages accounts out of band: the portal itself never creates,
// changes or deletes users.
type UserService interface {
	CreateUser(ctx context.Context, name, email, password string, admin bool) (*types.User, error)
	DeleteUserByEmail(ctx context.Context, email string) error
	SetAdminByEmail(ctx context.Context, email string, admin bool) (*types.User, error)
}

// UserServiceImpl provides the implementation for UserService.
type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
	hasher PasswordHasher
}

// NewUserService creates a new user service instance.
func NewUserService(repo UserRepo, hasher PasswordHasher, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
		hasher: hasher,
	}
}

// CreateUser hashes the password and stores a new user.
func (s *UserServiceImpl) CreateUser(ctx context.Context, name, email, password string, admin bool) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "CreateUser", trace.WithAttributes(
		attribute.String("user.email", email),
		attribute.Bool("user.admin", admin),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreateUser"), slog.String("email", email))

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		span.SetStatus(codes.Error, "Missing fields")
		return nil, fmt.Errorf("%w: name, email and password are required", types.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Hashing failed")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, types.CreateUserParams{
		Name:         name,
		Email:        email,
		Admin:        admin,
		PasswordHash: hash,
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create user")
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	l.InfoContext(ctx, "User created successfully", slog.String("userID", u.ID), slog.Bool("admin", u.Admin))
	span.SetStatus(codes.Ok, "User created")
	return u, nil
}

// DeleteUserByEmail removes the user with this email. Sessions issued to that
// user go stale on their next request.
func (s *UserServiceImpl) DeleteUserByEmail(ctx context.Context, email string) error {
	ctx, span := otel.Tracer("UserService").Start(ctx, "DeleteUserByEmail", trace.WithAttributes(
		attribute.String("user.email", email),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "DeleteUserByEmail"), slog.String("email", email))

	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return fmt.Errorf("error finding user %s: %w", email, err)
	}
	if err := s.repo.DeleteUser(ctx, u.ID); err != nil {
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return fmt.Errorf("error deleting user %s: %w", email, err)
	}

	l.InfoContext(ctx, "User deleted", slog.String("userID", u.ID))
	span.SetStatus(codes.Ok, "User deleted")
	return nil
}

// SetAdminByEmail grants or revokes admin. The change is visible on the
// user's next request since identities are re-read every time.
func (s *UserServiceImpl) SetAdminByEmail(ctx context.Context, email string, admin bool) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "SetAdminByEmail", trace.WithAttributes(
		attribute.String("user.email", email),
		attribute.Bool("user.admin", admin),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "SetAdminByEmail"), slog.String("email", email))

	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, fmt.Errorf("error finding user %s: %w", email, err)
	}
	if err := s.repo.SetAdmin(ctx, u.ID, admin); err != nil {
		l.ErrorContext(ctx, "Failed to update admin flag", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Update failed")
		return nil, fmt.Errorf("error updating user %s: %w", email, err)
	}
	u.Admin = admin

	l.InfoContext(ctx, "Admin flag updated", slog.String("userID", u.ID), slog.Bool("admin", admin))
	span.SetStatus(codes.Ok, "Admin flag updated")
	return u, nil
}
