package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/mic-data-portal/app/observability/metrics"
	"github.com/FACorreiaa/mic-data-portal/app/session"
	"github.com/FACorreiaa/mic-data-portal/internal/api"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
	"github.com/FACorreiaa/mic-data-portal/internal/view"
)

// HandlerImpl serves the login and logout endpoints.
type HandlerImpl struct {
	logger   *slog.Logger
	service  AuthService
	codec    IdentityCodec
	sessions *session.Manager
	limiter  *AttemptLimiter
	views    *view.Renderer
}

func NewHandlerImpl(service AuthService, codec IdentityCodec, sessions *session.Manager, limiter *AttemptLimiter, views *view.Renderer, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger:   logger,
		service:  service,
		codec:    codec,
		sessions: sessions,
		limiter:  limiter,
		views:    views,
	}
}

// LoginForm renders the login page.
func (h *HandlerImpl) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.views.Render(w, r, http.StatusOK, "users/login", "Login", nil)
}

// Login checks the submitted credentials. Every outcome except a fatal error
// is a flash message plus a redirect.
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AuthHandler").Start(r.Context(), "Login")
	defer span.End()
	l := h.logger.With(slog.String("HandlerImpl", "Login"))

	var req LoginRequest
	if api.IsJSONRequest(r) {
		if err := api.DecodeJSONBody(w, r, &req); err != nil {
			l.WarnContext(ctx, "Failed to decode login request", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	}
	req.Email = strings.TrimSpace(req.Email)
	l = l.With(slog.String("email", req.Email))

	s, err := h.sessions.Session(r)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load session", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}

	if req.Email == "" || req.Password == "" {
		h.flashAndRedirect(w, r, s, types.NewMessage(types.MessageValidationError, msgFillAllFields), LoginPath)
		return
	}

	if h.limiter.Locked(req.Email) {
		l.WarnContext(ctx, "Login refused, email is locked out")
		metrics.Get().LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "locked_out")))
		h.flashAndRedirect(w, r, s, types.NewMessage(types.MessageError, msgLockedOut), LoginPath)
		return
	}

	u, err := h.service.Authenticate(ctx, req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrUserNotFound):
		h.limiter.Fail(req.Email)
		h.flashAndRedirect(w, r, s, types.NewMessage(types.MessageError, "No user "+req.Email+" found"), LoginPath)
		return
	case errors.Is(err, types.ErrInvalidCredentials):
		failures := h.limiter.Fail(req.Email)
		l.InfoContext(ctx, "Failed login", slog.Int("failures", failures))
		h.flashAndRedirect(w, r, s, types.NewMessage(types.MessageError, msgIncorrectPassword), LoginPath)
		return
	default:
		l.ErrorContext(ctx, "Login failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}

	token, err := h.codec.Serialize(u)
	if err != nil {
		l.ErrorContext(ctx, "Failed to issue identity token", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}
	if err := h.sessions.SetToken(r, s, token); err != nil {
		l.ErrorContext(ctx, "Failed to store identity token", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}
	h.limiter.Reset(req.Email)

	l.InfoContext(ctx, "User logged in", slog.String("userID", u.ID))
	h.flashAndRedirect(w, r, s, types.NewMessage(types.MessageSuccess, msgLoggedIn), HomePath)
}

// Logout drops the identity and returns to the login page.
func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Logout"))

	s, err := h.sessions.Session(r)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load session", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}
	if u := CurrentUser(ctx); u != nil {
		l.InfoContext(ctx, "User logged out", slog.String("userID", u.ID))
	}

	if err := h.sessions.RevokeToken(r, s); err != nil {
		l.ErrorContext(ctx, "Failed to revoke session identity", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}
	h.flashAndRedirect(w, r, s, types.NewMessage(types.MessageSuccess, msgLoggedOut), LoginPath)
}

func (h *HandlerImpl) flashAndRedirect(w http.ResponseWriter, r *http.Request, s *sessions.Session, msg types.Message, to string) {
	h.sessions.AddFlash(s, msg)
	if err := h.sessions.Save(w, r, s); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to save session", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternalError)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
