package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type reexecuteKey struct{}

// IsReexecuted reports whether the request is the error page re-execution of a failed request
func IsReexecuted(ctx context.Context) bool {
	v, _ := ctx.Value(reexecuteKey{}).(bool)
	return v
}

// newExceptionRedirect recovers panics from later stages and re-executes the
// request as GET errorPath with status 500. A response that has already
// started cannot be replaced and is left as is.
func newExceptionRedirect(deps StageDeps) func(http.Handler) http.Handler {
	logger := deps.Logger
	errorPath := deps.ErrorPath

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				ctx := r.Context()
				span := trace.SpanFromContext(ctx)
				span.RecordError(panicError{rvr}, trace.WithStackTrace(true))
				span.SetStatus(codes.Error, "unhandled panic")

				logger.ErrorContext(ctx, "unhandled exception",
					slog.Any("panic", rvr),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())))

				if ww.Status() != 0 || ww.BytesWritten() > 0 {
					logger.WarnContext(ctx, "response already started, error page not rendered",
						slog.String("path", r.URL.Path))
					return
				}

				reexecute(w, r, next, errorPath, logger)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func reexecute(w http.ResponseWriter, r *http.Request, next http.Handler, errorPath string, logger *slog.Logger) {
	defer func() {
		if rvr := recover(); rvr != nil {
			logger.ErrorContext(r.Context(), "error page failed", slog.Any("panic", rvr))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()

	original := r.URL.Path
	ctx := context.WithValue(r.Context(), reexecuteKey{}, true)
	// the failed dispatch left its match state behind
	ctx = context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
	r2 := r.Clone(ctx)
	r2.Method = http.MethodGet
	r2.URL = &url.URL{Path: errorPath}
	r2.RequestURI = errorPath
	r2.Body = http.NoBody
	r2.ContentLength = 0
	r2.Header.Set("X-Original-Path", original)

	w.Header().Del("Content-Length")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	sw := &statusOverride{ResponseWriter: w, status: http.StatusInternalServerError}
	next.ServeHTTP(sw, r2)
	if !sw.wroteHeader {
		sw.WriteHeader(sw.status)
	}
}

// statusOverride forces the status code of a re-executed response
type statusOverride struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusOverride) WriteHeader(int) {
	if s.wroteHeader {
		return
	}
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(s.status)
}

func (s *statusOverride) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(s.status)
	}
	return s.ResponseWriter.Write(b)
}

type panicError struct {
	value interface{}
}

func (p panicError) Error() string {
	return slog.AnyValue(p.value).String()
}
