package middlewares

import (
	"net/http"
	"strconv"

	httperr "github.com/dropDatabas3/authkit/internal/http/errors"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/rate"
)

// WithRateLimit aplica un limiter de ventana fija por IP de cliente sobre el
// endpoint. name separa los contadores entre endpoints (login, refresh).
// Si el limiter falla (ej: Redis caído) el request pasa: fail-open, el rate
// limit nunca tira abajo el login.
func WithRateLimit(limiter rate.Limiter, name string) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + ClientIP(r)

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				httperr.WriteError(w, httperr.ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
