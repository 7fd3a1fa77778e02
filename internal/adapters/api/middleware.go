package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/knockdown-io/knockdown/pkg/auth"
)

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	l := &ipRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
	}
	go l.cleanup()
	return l
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup evicts IPs idle for more than three minutes.
func (l *ipRateLimiter) cleanup() {
	for range time.Tick(time.Minute) {
		l.mu.Lock()
		for ip, v := range l.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimitMiddleware rejects callers exceeding the per-IP budget.
func RateLimitMiddleware(limit rate.Limit, burst int) gin.HandlerFunc {
	limiter := newIPRateLimiter(limit, burst)
	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 10 * time.Minute
)

// IdempotencyMiddleware lets a client retry a bid after a network timeout
// without replaying it: the first request to claim a key proceeds, any
// duplicate is answered with 409. The key is optional; without one a replayed
// bid is still harmless, it is simply re-evaluated and rejected as too low.
// Must run after auth so keys are scoped per user.
func IdempotencyMiddleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" || rdb == nil {
			c.Next()
			return
		}

		userID := auth.MustGetUserID(c)
		claimed, err := rdb.SetNX(c.Request.Context(), "idem:"+userID.String()+":"+key, 1, idempotencyTTL).Result()
		if err != nil {
			// Redis being down must not block bidding; fall through.
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request", "idempotency_key": key})
			return
		}
		c.Next()
	}
}
