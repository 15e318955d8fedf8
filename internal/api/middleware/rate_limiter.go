package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

const anonymousKey = "anonymous"

// EndpointRateLimit overrides the default limit for paths under a prefix
type EndpointRateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// Key generator function - returns the actor from context
	KeyGenerator func(c *fiber.Ctx) string
	// PerEndpoint limits keyed by path prefix; the longest prefix wins
	PerEndpoint map[string]EndpointRateLimit
	// SkipSafeMethods lets GET, HEAD and OPTIONS through unmetered
	SkipSafeMethods bool
}

// DefaultRateLimiterConfig returns default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    1000,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			claims, ok := c.Locals(LocalAdminClaims).(*admin.AdminClaims)
			if !ok || claims == nil {
				return anonymousKey
			}
			return claims.Actor()
		},
	}
}

// ConsoleRateLimits returns the per-endpoint limits of the console surface
func ConsoleRateLimits() map[string]EndpointRateLimit {
	return map[string]EndpointRateLimit{
		"/console/intents": {Requests: 30, Window: time.Minute},
		"/console/refresh": {Requests: 10, Window: time.Minute},
	}
}

// actorLimiter tracks rate limiting state for one actor and endpoint
type actorLimiter struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
	window     time.Duration
}

// RateLimiter implements per-actor rate limiting
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*actorLimiter
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Max == 0 {
		config.Max = 1000
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultRateLimiterConfig().KeyGenerator
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*actorLimiter),
		done:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.config.SkipSafeMethods && isSafeMethod(c.Method()) {
			return c.Next()
		}

		key := rl.config.KeyGenerator(c)
		if key == "" || key == anonymousKey {
			// Allow anonymous requests to proceed (they'll fail at auth anyway)
			return c.Next()
		}

		limit, window, scope := rl.limitFor(c.Path())
		bucket := key + "|" + scope
		now := time.Now()

		rl.mu.Lock()
		limiter, exists := rl.limiters[bucket]
		if !exists || now.After(limiter.windowEnd) {
			limiter = &actorLimiter{windowEnd: now.Add(window), window: window}
			rl.limiters[bucket] = limiter
		}
		limiter.count++
		limiter.lastAccess = now
		count := limiter.count
		windowEnd := limiter.windowEnd
		rl.mu.Unlock()

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > limit {
			c.Set("Retry-After", strconv.Itoa(int(time.Until(windowEnd).Seconds())))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

func (rl *RateLimiter) limitFor(path string) (int, time.Duration, string) {
	best := ""
	for prefix := range rl.config.PerEndpoint {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return rl.config.Max, rl.config.Window, "*"
	}

	limit := rl.config.PerEndpoint[best]
	window := limit.Window
	if window == 0 {
		window = rl.config.Window
	}
	return limit.Requests, window, best
}

func isSafeMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}
	return false
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, limiter := range rl.limiters {
				// Remove entries that haven't been accessed in 2 windows
				if now.Sub(limiter.lastAccess) > 2*limiter.window {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
