package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/johnwmail/haste/internal/metrics"
)

// maxTrackedClients bounds the per-IP limiter table before idle entries
// are pruned.
const maxTrackedClients = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter is a per-IP token bucket allowing count events per window
// with a burst of count.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	window  time.Duration
	metrics *metrics.Metrics
}

// newRateLimiter returns nil when count is not positive, which disables
// limiting.
func newRateLimiter(count int, window time.Duration, m *metrics.Metrics) *rateLimiter {
	if count <= 0 || window <= 0 {
		return nil
	}
	return &rateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(window / time.Duration(count)),
		burst:   count,
		window:  window,
		metrics: m,
	}
}

func (rl *rateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.prune(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// prune drops clients idle for a full window; their buckets are full again
func (rl *rateLimiter) prune(now time.Time) {
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastSeen) >= rl.window {
			delete(rl.clients, ip)
		}
	}
}

// middleware rejects requests over the limit with 429
func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		if !rl.allow(c.ClientIP(), time.Now()) {
			rl.metrics.RateLimited()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
