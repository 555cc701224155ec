package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/mic-data-portal/app/observability/metrics"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService checks credentials. It never touches the session.
type AuthService interface {
	// Authenticate returns the user when password matches the stored hash.
	// Recoverable failures are types.ErrUserNotFound and
	// types.ErrInvalidCredentials; types.ErrVerification and
	// types.ErrStoreUnavailable are fatal.
	Authenticate(ctx context.Context, email, password string) (*types.User, error)
}

type AuthServiceImpl struct {
	logger   *slog.Logger
	users    UserFinder
	verifier PasswordVerifier
}

func NewAuthService(users UserFinder, verifier PasswordVerifier, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:   logger,
		users:    users,
		verifier: verifier,
	}
}

// Authenticate implements AuthService.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, email, password string) (u *types.User, err error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Authenticate", trace.WithAttributes(
		attribute.String("user.email", email),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		m := metrics.Get()
		m.LoginDurationSeconds.Record(ctx, time.Since(start).Seconds())
		m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", loginOutcome(err))))
	}()

	l := s.logger.With(slog.String("method", "Authenticate"), slog.String("email", email))

	u, err = s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.InfoContext(ctx, "Login for unknown email")
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("%w: %s", types.ErrUserNotFound, email)
		}
		l.ErrorContext(ctx, "Credential store lookup failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Store unavailable")
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	ok, err := s.verifier.Verify(password, u.PasswordHash)
	if err != nil {
		l.ErrorContext(ctx, "Stored password hash is unusable", slog.String("userID", u.ID), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Verification failed")
		return nil, fmt.Errorf("%w: %w", types.ErrVerification, err)
	}
	if !ok {
		l.InfoContext(ctx, "Incorrect password", slog.String("userID", u.ID))
		span.SetStatus(codes.Error, "Invalid credentials")
		return nil, types.ErrInvalidCredentials
	}

	l.InfoContext(ctx, "User authenticated", slog.String("userID", u.ID))
	span.SetAttributes(attribute.String("user.id", u.ID))
	span.SetStatus(codes.Ok, "Authenticated")
	return u, nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, types.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, types.ErrInvalidCredentials):
		return "invalid_password"
	default:
		return "error"
	}
}
