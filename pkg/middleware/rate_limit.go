package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rentwise/portal/pkg/metrics"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-key bucket is kept.
const limiterIdle = 10 * time.Minute

type limiterStore struct {
	buckets *gocache.Cache
	rps     float64
	burst   int
}

// get returns (and lazily creates) the token bucket for key
func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.buckets.Get(key); ok {
		s.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(s.rps), s.burst)
	if err := s.buckets.Add(key, lim, gocache.DefaultExpiration); err != nil {
		if v, ok := s.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// rateKey prefers the guarded subject, then the view session, then the client IP.
func rateKey(c *gin.Context) string {
	if s, ok := SubjectFrom(c); ok && !s.Synthetic {
		return "sub:" + s.UserID
	}
	if vs := ViewSessionID(c); vs != "" {
		return "view:" + vs
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// RateLimitMiddleware enforces an in-memory token bucket per key.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{buckets: gocache.New(limiterIdle, limiterIdle), rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !store.get(rateKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
