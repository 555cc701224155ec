package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/FACorreiaa/mic-data-portal/internal/api"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type HandlerImpl struct {
	logger *slog.Logger
	db     Pinger
}

func NewHandlerImpl(db Pinger, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger: logger,
		db:     db,
	}
}

// Ping answers 200 when the credential store responds and 503 otherwise.
func (h *HandlerImpl) Ping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "Health check failed", slog.Any("error", err))
		api.WriteJSONResponse(w, r, http.StatusServiceUnavailable, Status{Status: "degraded", Database: "down"})
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, Status{Status: "ok", Database: "up"})
}
