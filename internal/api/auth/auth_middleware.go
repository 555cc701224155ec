package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/mic-data-portal/app/session"
	"github.com/FACorreiaa/mic-data-portal/internal/api"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
	"github.com/FACorreiaa/mic-data-portal/internal/view"
)

// Decorator runs before every page handler. It drains the flash outbox,
// resolves the session identity and stores both on the request context for
// the templates. A stale identity is dropped from the session; a store
// failure ends the request with a 500.
func Decorator(sessions *session.Manager, codec IdentityCodec, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger.With(slog.String("middleware", "Decorator"))

			s, err := sessions.Session(r)
			if err != nil {
				l.ErrorContext(r.Context(), "Failed to load session", slog.Any("error", err))
				api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
				return
			}
			// Session caches itself on the request context, so read ctx after it.
			ctx := r.Context()

			messages := sessions.Flashes(s)
			changed := len(messages) > 0

			var current *types.PublicUser
			if token := sessions.Token(s); token != "" {
				u, err := codec.Resolve(ctx, token)
				switch {
				case err == nil:
					current = u.Public()
				case errors.Is(err, types.ErrStaleIdentity):
					l.InfoContext(ctx, "Dropping stale session identity", slog.Any("error", err))
					sessions.ClearToken(s)
					changed = true
				default:
					l.ErrorContext(ctx, "Failed to resolve session identity", slog.Any("error", err))
					api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
					return
				}
			}

			if changed {
				if err := sessions.Save(w, r, s); err != nil {
					l.ErrorContext(ctx, "Failed to save session", slog.Any("error", err))
					api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
					return
				}
			}

			ctx = view.WithRequestContext(ctx, view.RequestContext{
				CurrentUser: current,
				Messages:    messages,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the identity the Decorator attached, or nil.
func CurrentUser(ctx context.Context) *types.PublicUser {
	return view.CurrentUser(ctx)
}
