package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client rate limiting for API requests
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rps int, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// getLimiter returns a rate limiter for a specific key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()

	return v.limiter
}

// evict drops limiters idle for longer than idle
func (rl *RateLimiter) evict(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-idle)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Cleanup periodically removes idle limiters until ctx is done
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict(30 * time.Minute)
		}
	}
}

func clientKey(c *gin.Context) string {
	if clientID, ok := GetClientID(c); ok && clientID != "" {
		return fmt.Sprintf("client:%s", clientID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit middleware limits requests per client or IP
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(clientKey(c))
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// WindowCounter counts hits in a shared fixed window
type WindowCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// LaunchLimit bounds render launches per client per minute across every API
// replica. Counter failures let the request through.
func LaunchLimit(counter WindowCounter, perMinute int, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || perMinute <= 0 {
			c.Next()
			return
		}

		key := "launch:" + clientKey(c)
		allowed, err := counter.CheckRateLimit(c.Request.Context(), key, int64(perMinute), time.Minute)
		if err != nil {
			logger.WithError(err).Warn("launch rate limit check failed")
			c.Next()
			return
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many render launches, try again shortly",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
