package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	QuestionsPerMinute int           // Max questions per case per minute
	BurstSize          int           // Allow burst of N requests
	CleanupInterval    time.Duration // How often to clean up old entries
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := time.Since(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// CaseRateLimiter keeps one question bucket per case.
type CaseRateLimiter struct {
	config      RateLimiterConfig
	buckets     map[string]*TokenBucket
	mu          sync.Mutex
	logger      *zap.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

func NewCaseRateLimiter(config RateLimiterConfig, logger *zap.Logger) *CaseRateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	limiter := &CaseRateLimiter{
		config:      config,
		buckets:     make(map[string]*TokenBucket),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go limiter.cleanupRoutine()

	return limiter
}

func (l *CaseRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets that have refilled completely; they carry no state.
func (l *CaseRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.buckets)
	for caseID, bucket := range l.buckets {
		if bucket.Remaining() >= l.config.BurstSize {
			delete(l.buckets, caseID)
		}
	}
	if removed := before - len(l.buckets); removed > 0 && l.logger != nil {
		l.logger.Debug("Cleaned up rate limiter buckets", zap.Int("removed", removed))
	}
}

// Stop stops the cleanup routine
func (l *CaseRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// AllowQuestion checks if a question may be asked about the given case
func (l *CaseRateLimiter) AllowQuestion(caseID string) bool {
	l.mu.Lock()
	bucket, exists := l.buckets[caseID]
	if !exists {
		refillRate := float64(l.config.QuestionsPerMinute) / 60.0
		bucket = NewTokenBucket(float64(l.config.BurstSize), refillRate)
		l.buckets[caseID] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

// Remaining returns remaining question tokens for a case and the bucket size
func (l *CaseRateLimiter) Remaining(caseID string) (remaining int, limit int) {
	l.mu.Lock()
	bucket, exists := l.buckets[caseID]
	l.mu.Unlock()

	if !exists {
		return l.config.BurstSize, l.config.BurstSize
	}
	return bucket.Remaining(), l.config.BurstSize
}

// RateLimitMiddleware limits questions per :caseID path parameter.
func RateLimitMiddleware(limiter *CaseRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseID")
		if caseID == "" {
			c.Next()
			return
		}

		allowed := limiter.AllowQuestion(caseID)
		remaining, limit := limiter.Remaining(caseID)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if zapLogger := loggerFrom(c); zapLogger != nil {
				zapLogger.Warn("Rate limit exceeded",
					zap.String("case_id", caseID),
					zap.Int("limit", limit))
			}

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

func loggerFrom(c *gin.Context) *zap.Logger {
	v, ok := c.Get("logger")
	if !ok {
		return nil
	}
	logger, _ := v.(*zap.Logger)
	return logger
}
