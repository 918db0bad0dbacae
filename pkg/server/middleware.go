package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// requireAdminKey guards mutating routes with the X-Admin-Key shared
// secret. An unconfigured key rejects everything rather than opening the
// write surface.
func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Admin-Key")
		if s.adminKey == "" || got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(s.adminKey)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "missing or invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMetrics records per-route counters and latency. The chi route
// pattern is resolved after the handler ran, so parameterized paths share
// one label.
func (s *Server) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = r.Method + " " + p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var statusClass string
		switch {
		case status >= 500:
			statusClass = "5xx"
		case status >= 400:
			statusClass = "4xx"
		case status >= 300:
			statusClass = "3xx"
		default:
			statusClass = "2xx"
		}

		s.metrics.RecordRequest(r.Context(), route, statusClass, time.Since(start).Milliseconds())
		s.logger.Debug("request handled",
			"route", route, "status", status, "durationMs", time.Since(start).Milliseconds())
	})
}
