package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"p9e.in/lakewatch/pkg/metrics"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestInfo is shared between RequestLogger and the auth middleware of a
// nested router, which only sees a derived request.
type requestInfo struct {
	claims *Claims
}

func recordClaims(r *http.Request, c *Claims) {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		info.claims = c
	}
}

// RequestLogger logs one line per request and observes its duration.
// Install it with router.Use so the matched route is known.
func RequestLogger(log *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			info := &requestInfo{}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, info))
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			route := routeTemplate(r)
			m.HTTPRequestDuration.
				WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
				Observe(elapsed.Seconds())

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", elapsed),
				slog.String("ip", getClientIP(r)),
				slog.String("role", info.role()),
			)
		})
	}
}

func (i *requestInfo) role() string {
	if i.claims == nil {
		return ""
	}
	return i.claims.Role
}
