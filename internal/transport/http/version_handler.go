package http

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"
)

// VersionInfo identifies the running build
type VersionInfo struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	BuildTime   string `json:"build_time,omitempty"`
	Commit      string `json:"commit,omitempty"`
}

// VersionHandler serves build information
type VersionHandler struct {
	info      VersionInfo
	startTime time.Time
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(info VersionInfo) *VersionHandler {
	return &VersionHandler{info: info, startTime: time.Now()}
}

// Version handles GET /api/version
func (h *VersionHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"service":     h.info.Service,
		"version":     h.info.Version,
		"environment": h.info.Environment,
		"build_time":  h.info.BuildTime,
		"commit":      h.info.Commit,
		"go_version":  runtime.Version(),
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"start_time":  h.startTime.UTC().Format(time.RFC3339),
	})
}
