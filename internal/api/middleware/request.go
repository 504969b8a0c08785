package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// createTracker rate-limits document creation per client IP. Each create
// fires a blob upload and a wallet prompt, so a misbehaving client gets
// throttled before the saga starts.
type createTracker struct {
	attempts     map[string]*attemptInfo
	mu           sync.RWMutex
	limit        int
	window       time.Duration
	cleanupEvery time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

type attemptInfo struct {
	Count       int
	WindowStart time.Time
}

func newCreateTracker() *createTracker {
	tracker := &createTracker{
		attempts:     make(map[string]*attemptInfo),
		limit:        10,
		window:       time.Minute,
		cleanupEvery: 5 * time.Minute,
		done:         make(chan struct{}),
	}

	go tracker.startCleanup()

	return tracker
}

func (t *createTracker) startCleanup() {
	ticker := time.NewTicker(t.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanOldEntries()
		case <-t.done:
			return
		}
	}
}

func (t *createTracker) stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *createTracker) cleanOldEntries() {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := time.Now().Add(-t.window)
	for ip, info := range t.attempts {
		if info.WindowStart.Before(expiry) {
			delete(t.attempts, ip)
		}
	}
}

func (t *createTracker) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	info, exists := t.attempts[ip]
	if !exists || now.Sub(info.WindowStart) > t.window {
		t.attempts[ip] = &attemptInfo{Count: 1, WindowStart: now}
		return true
	}

	info.Count++
	return info.Count <= t.limit
}

type RequestMiddleware struct {
	logger  *zap.Logger
	tracker *createTracker
}

func NewRequestMiddleware(logger *zap.Logger) *RequestMiddleware {
	return &RequestMiddleware{
		logger:  logger,
		tracker: newCreateTracker(),
	}
}

// Stop terminates the tracker's cleanup goroutine. Safe to call more than
// once.
func (rm *RequestMiddleware) Stop() {
	rm.tracker.stop()
}

func (rm *RequestMiddleware) ProcessRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		ctx := context.WithValue(c.Request.Context(), "request_id", requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		rm.logger.Info("Request completed",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}

// ThrottleCreates answers 429 before the creation saga runs.
func (rm *RequestMiddleware) ThrottleCreates() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !rm.tracker.allow(clientIP) {
			rm.logger.Warn("Throttling document creation",
				zap.String("client_ip", clientIP))
			c.AbortWithStatusJSON(429, gin.H{"error": "too many creation requests, slow down"})
			return
		}
		c.Next()
	}
}

func (rm *RequestMiddleware) RecoverPanic() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Request.Context().Value("request_id").(string)
				rm.logger.Error("Panic recovered",
					zap.String("request_id", requestID),
					zap.Any("error", err),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(500, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
