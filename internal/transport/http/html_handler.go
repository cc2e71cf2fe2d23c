package http

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"time"

	apperrors "github.com/ClearMeasureLabs/onion8-flyway/internal/errors"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/infrastructure"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ErrorPageData is rendered by the error page template
type ErrorPageData struct {
	Service      string
	RequestID    string
	OriginalPath string
	ShowDetails  bool
}

// PageHandler renders the server-side pages
type PageHandler struct {
	service     string
	showDetails bool
	logger      *slog.Logger
}

// NewPageHandler creates a new page handler. showDetails adds the failed
// path to the error page and is only set in Development.
func NewPageHandler(service string, showDetails bool, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		service:     service,
		showDetails: showDetails,
		logger:      logger.With(slog.String("handler", "pages")),
	}
}

// ErrorPage handles GET /Error. When the exception stage re-executes a
// failed request here, that stage decides the response status.
func (h *PageHandler) ErrorPage(w http.ResponseWriter, r *http.Request) {
	data := ErrorPageData{
		Service:   h.service,
		RequestID: infrastructure.GetRequestID(r.Context()),
	}
	if h.showDetails {
		data.ShowDetails = true
		data.OriginalPath = r.Header.Get("X-Original-Path")
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "error.html", data); err != nil {
		h.logger.ErrorContext(r.Context(), "error page template failed", slog.String("error", err.Error()))
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_, _ = w.Write(buf.Bytes())
}

// FallbackHandler serves the entry document for client-side routes
type FallbackHandler struct {
	root   fs.FS
	entry  string
	logger *slog.Logger
	errors *apperrors.ErrorHandler
}

// NewFallbackHandler creates the handler used once no route matched
func NewFallbackHandler(root fs.FS, entry string, logger *slog.Logger) *FallbackHandler {
	return &FallbackHandler{
		root:   root,
		entry:  entry,
		logger: logger.With(slog.String("handler", "fallback")),
		errors: apperrors.NewErrorHandler(logger, false),
	}
}

// ServeHTTP answers GET and HEAD for paths without a file extension with
// the entry document. Anything that looks like a file gets 404.
func (h *FallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.errors.NotFound(w, r)
		return
	}
	if isFilePath(r.URL.Path) {
		h.errors.NotFound(w, r)
		return
	}

	data, err := fs.ReadFile(h.root, h.entry)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "entry document unavailable",
			slog.String("entry", h.entry),
			slog.String("error", err.Error()))
		h.errors.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, h.entry, time.Time{}, bytes.NewReader(data))
}

// isFilePath reports whether the last path segment has an extension
func isFilePath(p string) bool {
	return path.Ext(path.Base(p)) != ""
}
