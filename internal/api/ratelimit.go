package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig configures rate limiting behavior
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// rateLimiterMap stores rate limiters per IP address
type rateLimiterMap struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	config   RateLimiterConfig
}

func newRateLimiterMap(config RateLimiterConfig) *rateLimiterMap {
	return &rateLimiterMap{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// getLimiter returns or creates a rate limiter for the given IP
func (rl *rateLimiterMap) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Reset if too many limiters accumulated
	if len(rl.limiters) > 1000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.limiters[ip] = limiter
	}
	return limiter
}

// RateLimiterMiddleware limits transaction submissions per client IP.
func RateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	limiterMap := newRateLimiterMap(config)

	return func(c *gin.Context) {
		limiter := limiterMap.getLimiter(c.ClientIP())
		if !limiter.Allow() {
			reservation := limiter.Reserve()
			retryAfter := reservation.DelayFrom(time.Now()).Seconds()
			reservation.Cancel()

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded, please try again later",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
