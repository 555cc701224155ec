package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/mic-data-portal/app/observability/metrics"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

var _ IdentityCodec = (*JWTIdentityCodec)(nil)

// IdentityCodec turns a user into a session token and back.
type IdentityCodec interface {
	Serialize(u *types.User) (string, error)
	// Resolve returns the current stored user for token. A token that no
	// longer names a user yields types.ErrStaleIdentity; a store failure
	// yields types.ErrStoreUnavailable.
	Resolve(ctx context.Context, token string) (*types.User, error)
}

// JWTIdentityCodec signs HS256 tokens whose subject is the user id. Nothing
// else about the user goes into the token.
type JWTIdentityCodec struct {
	logger *slog.Logger
	users  UserFinder
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTIdentityCodec builds a codec. A ttl of zero issues tokens without an
// expiry.
func NewJWTIdentityCodec(users UserFinder, secret string, ttl time.Duration, issuer string, logger *slog.Logger) *JWTIdentityCodec {
	return &JWTIdentityCodec{
		logger: logger,
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Serialize implements IdentityCodec.
func (c *JWTIdentityCodec) Serialize(u *types.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("cannot serialize a user without an id")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:  u.ID,
		Issuer:   c.issuer,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return token, nil
}

// Resolve implements IdentityCodec.
func (c *JWTIdentityCodec) Resolve(ctx context.Context, token string) (u *types.User, err error) {
	ctx, span := otel.Tracer("IdentityCodec").Start(ctx, "Resolve")
	defer span.End()
	defer func() {
		metrics.Get().IdentityResolveTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", resolveOutcome(err))))
	}()

	l := c.logger.With(slog.String("method", "Resolve"))

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		l.DebugContext(ctx, "Identity token rejected", slog.Any("error", err))
		span.SetStatus(codes.Error, "Token rejected")
		return nil, fmt.Errorf("%w: %w", types.ErrStaleIdentity, err)
	}
	if claims.Subject == "" {
		span.SetStatus(codes.Error, "Token without subject")
		return nil, fmt.Errorf("%w: token has no subject", types.ErrStaleIdentity)
	}
	span.SetAttributes(attribute.String("user.id", claims.Subject))

	u, err = c.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.InfoContext(ctx, "Session names a user that no longer exists", slog.String("userID", claims.Subject))
			span.SetStatus(codes.Error, "User gone")
			return nil, fmt.Errorf("%w: user %s", types.ErrStaleIdentity, claims.Subject)
		}
		l.ErrorContext(ctx, "Credential store lookup failed", slog.String("userID", claims.Subject), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Store unavailable")
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	span.SetStatus(codes.Ok, "Resolved")
	return u, nil
}

func resolveOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrStaleIdentity):
		return "stale"
	default:
		return "error"
	}
}
