package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// isSecure reports whether the request reached the host over TLS,
// directly or through a proxy that set X-Forwarded-Proto
func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hostname(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// newHSTS sets Strict-Transport-Security on secure responses. Loopback hosts
// are excluded so local development certificates are never pinned.
func newHSTS(deps StageDeps) func(http.Handler) http.Handler {
	value := "max-age=" + strconv.FormatInt(int64(deps.HSTSMaxAge.Seconds()), 10)
	if deps.HSTSSubdomains {
		value += "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSecure(r) && !isLoopback(hostname(r.Host)) {
				w.Header().Set("Strict-Transport-Security", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// newHTTPSRedirect sends plain-HTTP requests to the HTTPS listener with a
// 307. Without a known HTTPS port it logs once and lets requests through.
func newHTTPSRedirect(deps StageDeps) func(http.Handler) http.Handler {
	logger := deps.Logger
	port := deps.HTTPSPort
	var warnOnce sync.Once

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSecure(r) {
				next.ServeHTTP(w, r)
				return
			}

			if port == 0 {
				warnOnce.Do(func() {
					logger.WarnContext(r.Context(), "Failed to determine the https port for redirect")
				})
				next.ServeHTTP(w, r)
				return
			}

			host := hostname(r.Host)
			if strings.Contains(host, ":") {
				host = "[" + host + "]"
			}
			if port != 443 {
				host = fmt.Sprintf("%s:%d", host, port)
			}

			target := "https://" + host + r.URL.RequestURI()
			logger.DebugContext(r.Context(), "redirecting to https",
				slog.String("path", r.URL.Path),
				slog.String("location", target))
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		})
	}
}
