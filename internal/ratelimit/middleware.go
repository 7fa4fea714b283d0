package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/polkart/storefront-api/internal/common"
)

// New builds a limiter instance for the given store and rate, e.g. 10
// requests per minute per client IP.
func New(store limiter.Store, period time.Duration, limit int64) *limiter.Limiter {
	return limiter.New(store, limiter.Rate{Period: period, Limit: limit})
}

// Handler enforces a per-IP rate limit before delegating to the next handler.
// Store errors fail open so a Redis hiccup never blocks checkout.
type Handler struct {
	Limiter *limiter.Limiter
	Logger  zerolog.Logger
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		lctx, err := h.Limiter.Get(r.Context(), h.Limiter.GetIPKey(r))
		if err != nil {
			h.Logger.Warn().Err(err).Msg("rate limit store unavailable")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := lctx.Reset - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
