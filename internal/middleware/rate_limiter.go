package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig configures rate limiting behavior
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops a client's limiter after this long without requests.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterMap stores rate limiters per client IP
type limiterMap struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	config   RateLimiterConfig
}

func newLimiterMap(config RateLimiterConfig) *limiterMap {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &limiterMap{
		limiters: make(map[string]*clientLimiter),
		config:   config,
	}
}

func (m *limiterMap) get(ip string, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	cl, ok := m.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), m.config.Burst)}
		m.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// evict removes limiters idle for longer than IdleTTL.
func (m *limiterMap) evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for ip, cl := range m.limiters {
		if now.Sub(cl.lastSeen) > m.config.IdleTTL {
			delete(m.limiters, ip)
			removed++
		}
	}
	return removed
}

func (m *limiterMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}

func (m *limiterMap) sweep() {
	ticker := time.NewTicker(m.config.IdleTTL)
	defer ticker.Stop()
	for now := range ticker.C {
		m.evict(now)
	}
}

// RateLimiterMiddleware limits requests per client IP. Rejected requests get
// 429 with a Retry-After header.
func RateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	limiters := newLimiterMap(config)
	go limiters.sweep()

	return func(c *gin.Context) {
		now := time.Now()
		limiter := limiters.get(c.ClientIP(), now)

		if !limiter.AllowN(now, 1) {
			reservation := limiter.ReserveN(now, 1)
			retryAfter := reservation.DelayFrom(now).Seconds()
			reservation.CancelAt(now)

			c.Header("Retry-After", formatRetryAfter(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "Rate limit exceeded. Please try again later.",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

func formatRetryAfter(seconds float64) string {
	s := int(math.Ceil(seconds))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

