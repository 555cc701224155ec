package pages

import (
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/mic-data-portal/internal/view"
)

const portalTitle = "Microbiology Data Portal"

// HandlerImpl serves the static content pages.
type HandlerImpl struct {
	logger *slog.Logger
	views  *view.Renderer
}

func NewHandlerImpl(views *view.Renderer, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger: logger,
		views:  views,
	}
}

func (h *HandlerImpl) Index(w http.ResponseWriter, r *http.Request) {
	h.views.Render(w, r, http.StatusOK, "index", portalTitle, nil)
}

func (h *HandlerImpl) Vitek(w http.ResponseWriter, r *http.Request) {
	h.views.Render(w, r, http.StatusOK, "vitek", portalTitle, nil)
}
