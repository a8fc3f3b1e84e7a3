package middleware

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/audit"
	apperrors "github.com/openclaw/widget-session-server/internal/errors"
	"github.com/openclaw/widget-session-server/internal/httputil"
	"github.com/openclaw/widget-session-server/internal/service"
)

// RateLimitMiddleware charges each request to the caller's ip window and,
// when MerchantContext has resolved one, to the merchant's window.
type RateLimitMiddleware struct {
	limiter *service.RateLimiter
}

func NewRateLimitMiddleware(limiter *service.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r)
		merchantID := GetMerchantID(r.Context())

		decision := m.limiter.Allow(r.Context(), ip, merchantID)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			log.Warn().
				Str("ip", ip).
				Str("merchantId", merchantID).
				Str("scope", string(decision.Scope)).
				Int("retryAfter", decision.RetryAfterSeconds()).
				Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:       audit.EventRateLimitExceed,
				MerchantID: merchantID,
				Details:    map[string]interface{}{"scope": string(decision.Scope)},
			})
			writeError(w, apperrors.RateLimited(decision.RetryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}
