package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"familypoints/observability"
	"familypoints/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// requestLogger logs each request and records its latency by route pattern
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RecordHTTPRequest(r.Method, route, status, elapsed)

		log.WithFields(log.Fields{
			"method":    r.Method,
			"route":     route,
			"status":    status,
			"bytes":     ww.BytesWritten(),
			"duration":  elapsed,
			"requestID": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// rateLimitByIP limits requests per client address within scope.
// Limiter failures let the request through.
func (s *Server) rateLimitByIP(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.deps.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := scope + ":" + clientIP(r)
			result, err := s.deps.Limiter.Check(r.Context(), key, s.maxAttempts, s.window)
			if err != nil {
				log.WithFields(log.Fields{
					"scope": scope,
					"error": err,
				}).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.RemainingAttempts))
			if !result.Allowed {
				observability.RateLimitRejections.WithLabelValues(scope).Inc()
				writeServiceError(w, r, service.NewRateLimitedError(result.RetryAfterSeconds))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from the remote address set by RealIP
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
