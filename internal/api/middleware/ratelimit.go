package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitTier      = "X-RateLimit-Tier"
	HeaderRetryAfter         = "Retry-After"
)

// Limiter decides whether an identity may proceed.
type Limiter interface {
	Allow(ctx context.Context, id ratelimit.Identity) (ratelimit.Decision, error)
}

// IdentityResolver derives the rate limit identity of a request.
type IdentityResolver interface {
	Resolve(r *http.Request) ratelimit.Identity
}

// RateLimit applies limiter to every request except the bypass paths. A
// bypass entry ending in "/" matches as a prefix, any other entry matches
// exactly.
func RateLimit(limiter Limiter, resolver IdentityResolver, bypass []string) func(http.Handler) http.Handler {
	exact := make(map[string]struct{}, len(bypass))
	var prefixes []string
	for _, p := range bypass {
		if strings.HasSuffix(p, "/") {
			prefixes = append(prefixes, p)
			continue
		}
		exact[p] = struct{}{}
	}

	bypassed := func(path string) bool {
		if _, ok := exact[path]; ok {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			id := resolver.Resolve(r)
			decision, err := limiter.Allow(r.Context(), id)

			var exceeded *ratelimit.ExceededError
			switch {
			case errors.As(err, &exceeded):
				respondRateLimited(w, r, id, exceeded)
				return
			case err != nil:
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable,
					"Rate limiting is temporarily unavailable", err)
				return
			}

			if !decision.Exempt {
				w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(decision.Tier.Limit))
				w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(max(decision.Remaining, 0)))
				w.Header().Set(HeaderRateLimitTier, decision.Tier.Name)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(w http.ResponseWriter, r *http.Request, id ratelimit.Identity, e *ratelimit.ExceededError) {
	retryAfter := e.RetryAfterSeconds()

	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(e.Limit))
	w.Header().Set(HeaderRateLimitRemaining, "0")
	w.Header().Set(HeaderRateLimitTier, e.Tier)

	shared.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded for tier "+e.Tier,
		shared.WithRateLimit(e.Tier, e.Limit, retryAfter),
		shared.WithLogAttrs(slog.String("caller_key", id.Key)))
}
