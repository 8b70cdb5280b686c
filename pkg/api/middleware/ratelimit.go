package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/metrics"
	"github.com/termgate/termgate/pkg/ratelimit"
)

// RateLimit rejects requests exceeding the limiter's per-IP budget with
// 429 and a retryAfter hint. The bucket name labels metrics and logs;
// the gateway runs a "global" bucket plus a stricter "auth" bucket.
func RateLimit(limiter *ratelimit.Limiter, bucket string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			decision, err := limiter.Take(r.Context(), key)
			if err != nil {
				logger.ErrorCtx(r.Context(), "rate limiter failure", "bucket", bucket, "error", err)
				// Fail open: a broken limiter must not take the API down
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				m.RecordRateLimited(bucket)
				logger.DebugCtx(r.Context(), "request rate limited",
					"bucket", bucket,
					"client_ip", key,
					"retry_after", decision.RetryAfter.String(),
				)
				writeRateLimited(w, decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the request's source IP without the port. RealIP
// middleware runs earlier in the chain, so RemoteAddr already reflects
// forwarded headers when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int64(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"success":false,"error":"Too many requests, please try again later","retryAfter":%d}`, seconds)
}
