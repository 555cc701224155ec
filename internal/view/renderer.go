package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

const layoutTemplate = "layout"

// PageData is what every page template executes with.
type PageData struct {
	Title       string
	CurrentUser *types.PublicUser
	Messages    []types.Message
	Data        any
}

// Renderer executes pages inside the configured layout.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

var funcs = template.FuncMap{
	"year": func() int { return time.Now().Year() },
}

// NewRenderer parses layouts/<layout>.html and partials/*.html once, then
// every other .html file in fsys as a page named by its path without the
// extension ("index", "users/login").
func NewRenderer(fsys fs.FS, layout string, logger *slog.Logger) (*Renderer, error) {
	layoutFile := path.Join("layouts", layout+".html")
	base, err := template.New(layoutTemplate).Funcs(funcs).ParseFS(fsys, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout %q: %w", layout, err)
	}
	if partials, _ := fs.Glob(fsys, "partials/*.html"); len(partials) > 0 {
		if base, err = base.ParseFS(fsys, partials...); err != nil {
			return nil, fmt.Errorf("failed to parse partials: %w", err)
		}
	}

	pages := make(map[string]*template.Template)
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == "layouts" || p == "partials" {
				return fs.SkipDir
			}
			return nil
		}
		if path.Ext(p) != ".html" {
			return nil
		}
		t, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err = t.ParseFS(fsys, p); err != nil {
			return fmt.Errorf("failed to parse page %q: %w", p, err)
		}
		pages[strings.TrimSuffix(p, ".html")] = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Templates loaded", slog.String("layout", layout), slog.Int("pages", len(pages)))
	return &Renderer{pages: pages, logger: logger}, nil
}

// Render writes page with the request's identity and messages. Output is
// buffered so a template error still yields a clean 500.
func (v *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	ctx := r.Context()
	l := v.logger.With(slog.String("page", page), slog.String("req_id", middleware.GetReqID(ctx)))

	t, ok := v.pages[page]
	if !ok {
		l.ErrorContext(ctx, "Unknown page template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rc := FromContext(ctx)
	pd := PageData{
		Title:       title,
		CurrentUser: rc.CurrentUser,
		Messages:    rc.Messages,
		Data:        data,
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutTemplate, pd); err != nil {
		l.ErrorContext(ctx, "Failed to render page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		l.WarnContext(ctx, "Failed to write page", slog.Any("error", err))
	}
}
