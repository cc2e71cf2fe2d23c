package middleware

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// AssetInfo describes one client framework file in the debug manifest
type AssetInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// AssetManifest is served at <prefix>/debug while debugging support is on
type AssetManifest struct {
	Root   string      `json:"root"`
	Count  int         `json:"count"`
	Assets []AssetInfo `json:"assets"`
}

// newClientDebugging exposes client-side debugging aids: a manifest of the
// framework assets, the runtime profiler, and uncached responses everywhere
// else so edited assets are picked up on reload.
func newClientDebugging(deps StageDeps) func(http.Handler) http.Handler {
	prefix := strings.TrimSuffix(deps.FrameworkPrefix, "/")
	debugPath := prefix + "/debug"
	root := deps.WebRoot
	logger := deps.Logger

	// the profiler owns everything below debugPath/ and serves /pprof/* itself
	mux := chi.NewRouter()
	mux.Mount(debugPath+"/", chimw.Profiler())
	mux.Get(debugPath, func(w http.ResponseWriter, r *http.Request) {
		manifest, err := buildManifest(root, strings.TrimPrefix(prefix, "/"))
		if err != nil {
			logger.WarnContext(r.Context(), "failed to build asset manifest", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, manifest)
	})

	return func(next http.Handler) http.Handler {
		uncached := chimw.NoCache(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == debugPath || strings.HasPrefix(r.URL.Path, debugPath+"/") {
				mux.ServeHTTP(w, r)
				return
			}
			uncached.ServeHTTP(w, r)
		})
	}
}

func buildManifest(root fs.FS, dir string) (*AssetManifest, error) {
	manifest := &AssetManifest{Root: "/" + dir, Assets: []AssetInfo{}}
	if root == nil {
		return manifest, nil
	}

	err := fs.WalkDir(root, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		manifest.Assets = append(manifest.Assets, AssetInfo{
			Name:     path.Clean(strings.TrimPrefix(p, dir+"/")),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	manifest.Count = len(manifest.Assets)
	return manifest, nil
}
