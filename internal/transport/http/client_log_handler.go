package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/ClearMeasureLabs/onion8-flyway/internal/errors"
)

const maxClientLogBody = 64 << 10

// ClientLogHandler accepts log entries from the browser application and
// writes them to the server log
type ClientLogHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(logger *slog.Logger) *ClientLogHandler {
	return &ClientLogHandler{
		logger:   logger.With(slog.String("handler", "client_log")),
		validate: validator.New(),
	}
}

// LogRequest represents a client log entry
type LogRequest struct {
	Level    string                 `json:"level" validate:"omitempty,oneof=debug info warn warning error critical"`
	Message  string                 `json:"message" validate:"required,max=4096"`
	Category string                 `json:"category,omitempty" validate:"max=256"`
	Source   string                 `json:"source,omitempty" validate:"max=512"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Bind implements render.Binder
func (req *LogRequest) Bind(*http.Request) error {
	req.Level = strings.ToLower(strings.TrimSpace(req.Level))
	return nil
}

// Handle handles POST /api/client-logs
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxClientLogBody)

	var req LogRequest
	if err := render.Bind(r, &req); err != nil {
		h.reject(w, r, "Invalid request format")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.reject(w, r, validationDetail(err))
		return
	}

	attrs := []slog.Attr{
		slog.String("client_source", req.Source),
		slog.String("client_category", req.Category),
	}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}

	h.logger.LogAttrs(r.Context(), clientLevel(req.Level), req.Message, attrs...)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{"success": true})
}

func (h *ClientLogHandler) reject(w http.ResponseWriter, r *http.Request, detail string) {
	_ = render.Render(w, r, apperrors.ProblemFromStatus(http.StatusBadRequest, detail, r.URL.Path))
}

func validationDetail(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(fields, "; ")
}

// clientLevel maps browser log levels; unknown or empty levels log at info
func clientLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
