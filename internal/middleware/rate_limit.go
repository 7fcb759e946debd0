package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	pkghttp "github.com/controlinterno/casos-api/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	IPConfig *pkghttp.IPConfig
}

// DefaultLoginRateLimit allows five login attempts per client every fifteen minutes
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 5,
		Window:   15 * time.Minute,
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	def := DefaultLoginRateLimit()
	if c.Requests <= 0 {
		c.Requests = def.Requests
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Demasiados intentos, intente nuevamente más tarde")
}

// RateLimitByIP rate limits requests by client address, resolving it through
// the trusted proxy list
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	config = config.withDefaults()

	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByAccount rate limits authenticated requests per account and falls
// back to the client address when no identity is attached
func RateLimitByAccount(config RateLimitConfig) func(next http.Handler) http.Handler {
	config = config.withDefaults()

	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if identity := auth.IdentityFromContext(r.Context()); identity != nil {
				return "account:" + strconv.FormatInt(identity.AccountID, 10), nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}
