package pages

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
	"github.com/FACorreiaa/mic-data-portal/internal/view"
	"github.com/FACorreiaa/mic-data-portal/web"
)

func newHandler(t *testing.T) *HandlerImpl {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	views, err := view.NewRenderer(web.Views(), "main", logger)
	require.NoError(t, err)
	return NewHandlerImpl(views, logger)
}

func TestPages(t *testing.T) {
	h := newHandler(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{name: "Index", handler: h.Index, want: "Please <a href=\"/users/login\">log in</a>"},
		{name: "Vitek", handler: h.Vitek, want: "Vitek analyser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "<title>"+portalTitle+"</title>")
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestIndexShowsMessagesAndUser(t *testing.T) {
	h := newHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(view.WithRequestContext(req.Context(), view.RequestContext{
		CurrentUser: &types.PublicUser{ID: "u1", Name: "Ann <admin>", Email: "a@b.com", Admin: true},
		Messages:    []types.Message{types.NewMessage(types.MessageSuccess, "You are now logged in")},
	}))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `class="alert alert-success"`)
	assert.Contains(t, body, "You are now logged in")
	assert.Contains(t, body, "Ann &lt;admin&gt; (admin)")
	assert.NotContains(t, body, `href="/users/login">Login`)
}
