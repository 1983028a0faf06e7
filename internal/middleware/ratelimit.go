package middleware

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/eventhub/internal/metrics"
	"github.com/sakif/eventhub/internal/ratelimit"
)

const rateLimitedBody = `{"error":"rate_limited","message":"Too many requests, please try again later"}` + "\n"

// RateLimit limits requests per client IP under the given route label.
// The label also prefixes the limiter key, so each route has its own budget.
//
// If the limiter itself fails (Redis down), the request is let through and
// the failure logged.
func RateLimit(limiter ratelimit.Limiter, route string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			ok, err := limiter.Allow(r.Context(), route+":"+ip)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("route", route),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !ok {
				metrics.ObserveRateLimited(route)
				logger.Info("request rate limited",
					slog.String("route", route),
					slog.String("ip", ip),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(rateLimitedBody))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. Forwarding headers are never
// read here: RemoteAddr is the socket peer unless the server was configured
// to trust a proxy and chi's RealIP rewrote it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
