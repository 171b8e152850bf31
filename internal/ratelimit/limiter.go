package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/abduss/otagate/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL = 10 * time.Minute
	// MaxClients bounds the tracked buckets; the least recently seen client is
	// evicted first.
	MaxClients = 100_000
)

// Limiter hands out one token bucket per client address. Buckets idle for
// longer than the idle TTL are evicted.
type Limiter struct {
	rps     rate.Limit
	burst   int
	clients *ttlcache.Cache[string, *rate.Limiter]
	nowFunc func() time.Time
}

// New returns a Limiter, or nil when requestsPerSec or burst is not
// positive. A nil Limiter allows everything.
func New(requestsPerSec float64, burst int) *Limiter {
	if requestsPerSec <= 0 || burst <= 0 {
		return nil
	}

	clients := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](defaultIdleTTL),
		ttlcache.WithCapacity[string, *rate.Limiter](MaxClients),
	)
	go clients.Start()

	return &Limiter{
		rps:     rate.Limit(requestsPerSec),
		burst:   burst,
		clients: clients,
		nowFunc: time.Now,
	}
}

// Close stops the eviction loop.
func (l *Limiter) Close() {
	if l != nil {
		l.clients.Stop()
	}
}

// Allow consumes one token for clientID. When the bucket is empty it
// returns false and how long the client should wait.
func (l *Limiter) Allow(clientID string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	if clientID == "" {
		clientID = "unknown"
	}

	now := l.nowFunc()
	reservation := l.limiter(clientID).ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) limiter(clientID string) *rate.Limiter {
	if item := l.clients.Get(clientID); item != nil {
		return item.Value()
	}
	item, _ := l.clients.GetOrSet(clientID, rate.NewLimiter(l.rps, l.burst))
	return item.Value()
}

// Middleware rejects over-limit clients with 429 and a Retry-After header.
// Clients are keyed by gin's ClientIP, so forwarding headers only count when
// the engine trusts the proxy that sent them.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		ok, wait := l.Allow(client)
		if ok {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.FromContext(c).Warn("rate limit exceeded",
			zap.String("client", client), zap.Duration("retry_after", wait))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	}
}
