package middleware

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// frameworkContentTypes covers client runtime files the mime table does not know
var frameworkContentTypes = map[string]string{
	".wasm": "application/wasm",
	".dll":  "application/octet-stream",
	".pdb":  "application/octet-stream",
	".dat":  "application/octet-stream",
	".blat": "application/octet-stream",
	".js":   "text/javascript",
	".json": "application/json",
}

var precompressed = []struct {
	encoding  string
	extension string
}{
	{"br", ".br"},
	{"gzip", ".gz"},
}

// newStaticServing serves framework files under the framework prefix and
// then any other file in the web root. Requests that match no file fall
// through to the next stage.
func newStaticServing(deps StageDeps) func(http.Handler) http.Handler {
	root := deps.WebRoot
	prefix := strings.TrimSuffix(deps.FrameworkPrefix, "/") + "/"

	return func(next http.Handler) http.Handler {
		if root == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			name, ok := fsName(r.URL.Path)
			if !ok || !isFile(root, name) {
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasPrefix(r.URL.Path, prefix) {
				serveFrameworkFile(w, r, root, name)
				return
			}

			http.ServeFileFS(w, r, root, name)
		})
	}
}

func serveFrameworkFile(w http.ResponseWriter, r *http.Request, root fs.FS, name string) {
	if ct, ok := frameworkContentTypes[path.Ext(name)]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Add("Vary", "Accept-Encoding")

	accept := r.Header.Get("Accept-Encoding")
	for _, pc := range precompressed {
		if !acceptsEncoding(accept, pc.encoding) || !isFile(root, name+pc.extension) {
			continue
		}
		w.Header().Set("Content-Encoding", pc.encoding)
		serveContent(w, r, root, name, name+pc.extension)
		return
	}

	serveContent(w, r, root, name, name)
}

// serveContent streams file under the content type of name, so a
// precompressed variant keeps the type of the original asset
func serveContent(w http.ResponseWriter, r *http.Request, root fs.FS, name, file string) {
	f, err := root.Open(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		rs = bytes.NewReader(data)
	}

	http.ServeContent(w, r, name, info.ModTime(), rs)
}

func acceptsEncoding(header, encoding string) bool {
	for _, part := range strings.Split(header, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(token), encoding) {
			continue
		}
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			return false
		}
		return true
	}
	return false
}

// fsName maps a URL path to an fs.FS name, rejecting anything fs.ValidPath refuses
func fsName(urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

func isFile(root fs.FS, name string) bool {
	info, err := fs.Stat(root, name)
	return err == nil && !info.IsDir()
}
