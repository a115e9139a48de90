package server

import (
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// BidderHeader carries the opaque caller id set by the upstream gateway
const BidderHeader = "X-Bidder-ID"

var errMissingIdentity = errors.New("missing " + BidderHeader + " header")

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":    c.Request.Method,
		"path":      c.Request.URL.Path,
		"status":    c.Writer.Status(),
		"latency":   time.Since(start).String(),
		"bidder_id": helpers.CallerID(c),
	})
}

// IdentityMiddleware copies the caller id from the request header into the context
func IdentityMiddleware(c *gin.Context) {
	if id := strings.TrimSpace(c.GetHeader(BidderHeader)); id != "" {
		c.Set(helpers.IdentityKey, id)
	}
	c.Next()
}

// RequireIdentity rejects requests without a caller id
func RequireIdentity(c *gin.Context) {
	if helpers.CallerID(c) == "" {
		utils.JSONAbort(c, http.StatusUnauthorized, errMissingIdentity, "caller identity required")
		return
	}
	c.Next()
}

// BidRateLimiter throttles requests per caller with a token bucket each
type BidRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewBidRateLimiter allows perSecond requests per caller with the given burst
func NewBidRateLimiter(perSecond float64, burst int) *BidRateLimiter {
	return &BidRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *BidRateLimiter) limiterFor(callerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[callerID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[callerID] = lim
	}
	return lim
}

// Middleware returns the gin handler enforcing the limit
func (l *BidRateLimiter) Middleware(c *gin.Context) {
	callerID := helpers.CallerID(c)
	if !l.limiterFor(callerID).Allow() {
		utils.Warn("Bid rate limit exceeded", map[string]any{"bidder_id": callerID, "path": c.Request.URL.Path})
		utils.JSONAbort(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"), "too many bids, slow down")
		return
	}
	c.Next()
}
