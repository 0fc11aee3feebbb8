package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"paytr-payment-api/logger"
	"paytr-payment-api/utils"
)

type RateLimiter struct {
	client  *redis.Client
	configs map[string]RateLimitConfig
	log     *zap.Logger
	now     func() time.Time
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Message  string
}

var defaultConfigs = map[string]RateLimitConfig{
	"/api/payments/charge": {
		Requests: 30,
		Window:   time.Minute,
		Message:  "Too many charge attempts. Please wait a minute.",
	},
	"/api/payments/link": {
		Requests: 60,
		Window:   time.Minute,
		Message:  "Too many payment link requests. Please wait a minute.",
	},
	"default": {
		Requests: 120,
		Window:   time.Minute,
		Message:  "Rate limit exceeded. Please slow down your requests.",
	},
}

func NewRateLimiterFromClient(client *redis.Client) *RateLimiter {
	configs := make(map[string]RateLimitConfig, len(defaultConfigs))
	for k, v := range defaultConfigs {
		configs[k] = v
	}
	return &RateLimiter{
		client:  client,
		configs: configs,
		log:     logger.Named("rate_limit"),
		now:     time.Now,
	}
}

// SetLimit overrides the limit for an exact path, or "default".
func (rl *RateLimiter) SetLimit(path string, cfg RateLimitConfig) {
	rl.configs[path] = cfg
}

// RateLimitMiddleware applies a fixed window per caller and path. Callers are
// keyed by authenticated client id, falling back to the resolved client IP. Redis
// errors let the request through.
func (rl *RateLimiter) RateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			config := rl.getConfigForEndpoint(r.URL.Path)
			key := rl.getRateLimitKey(r)

			allowed, remaining, resetTime, err := rl.checkRateLimit(r.Context(), key, config)
			if err != nil {
				rl.log.Warn("rate limit check failed, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				rl.log.Warn("rate limit exceeded", zap.String("key", key))
				retry := int64(resetTime.Sub(rl.now()).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				utils.SendErrorResponse(w, http.StatusTooManyRequests, config.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) getConfigForEndpoint(path string) RateLimitConfig {
	if config, exists := rl.configs[path]; exists {
		return config
	}
	return rl.configs["default"]
}

func (rl *RateLimiter) getRateLimitKey(r *http.Request) string {
	path := r.URL.Path
	if _, exact := rl.configs[path]; !exact {
		path = "default"
	}
	caller := "ip:" + requestIP(r)
	if p := GetPrincipalFromContext(r.Context()); p != nil && p.ClientID != "" {
		caller = "client:" + p.ClientID
	}
	return fmt.Sprintf("rate_limit:%s:%s", path, caller)
}

// checkRateLimit counts the request in the current window.
func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, resetTime time.Time, err error) {
	now := rl.now()
	windowStart := now.Truncate(config.Window)
	resetTime = windowStart.Add(config.Window)
	windowKey := key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, config.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := int(incr.Val())
	if count > config.Requests {
		return false, 0, resetTime, nil
	}
	return true, config.Requests - count, resetTime, nil
}

// SecurityHeadersMiddleware sets conservative headers on every response.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) Close() error {
	return rl.client.Close()
}
