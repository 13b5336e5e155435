package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the client address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// ByPlayer charges authenticated requests to the player and falls back to
// the client address. It must run after Auth.
func ByPlayer(c *gin.Context) string {
	if p := GetPlayer(c); p != uuid.Nil {
		return "player:" + p.String()
	}
	return c.ClientIP()
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, ByClientIP)
}

// RateLimitBy is RateLimit with a custom bucket key.
func RateLimitBy(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)
	lastSweep := time.Now()

	get := func(k string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		// Stale buckets are swept inline every 5 minutes.
		if now.Sub(lastSweep) > 5*time.Minute {
			cutoff := now.Add(-10 * time.Minute)
			for id, e := range limiters {
				if e.lastSeen.Before(cutoff) {
					delete(limiters, id)
				}
			}
			lastSweep = now
		}
		e, ok := limiters[k]
		if !ok {
			e = &limiterEntry{limiter: rate.NewLimiter(r, b)}
			limiters[k] = e
		}
		e.lastSeen = now
		return e.limiter
	}

	return func(c *gin.Context) {
		if !get(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
