package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	apperrors "organoid-qc/internal/errors"
	"organoid-qc/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestID propagates or assigns X-Request-ID and logs one line per
// request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"request_id":  id,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Info("Request handled")
	}
}

// cors allows every origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// RateLimiterConfig configures the fixed-window upload limiter
type RateLimiterConfig struct {
	Client    redis.Cmdable
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// rateLimiter counts requests per client IP in redis. The IP comes from
// gin's ClientIP, so forwarding headers count only when the peer is a
// trusted proxy. Redis failures let the request through.
func rateLimiter(cfg RateLimiterConfig) gin.HandlerFunc {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "qc:rl:"
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.ClientIP()
		if id == "" {
			id = "anonymous"
		}
		key := cfg.KeyPrefix + id

		count, err := cfg.Client.Incr(ctx, key).Result()
		if err != nil {
			logger.WithError(err).Warn("Rate limiter unavailable")
			c.Next()
			return
		}
		if count == 1 {
			if err := cfg.Client.Expire(ctx, key, cfg.Window).Err(); err != nil {
				// A counter without expiry would lock the client out for good.
				logger.WithError(err).WithField("key", key).Warn("Rate limiter expire failed")
				cfg.Client.Del(ctx, key)
				c.Next()
				return
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		if count > int64(cfg.Limit) {
			c.Header("X-RateLimit-Remaining", "0")
			reset := retryAfter(ctx, cfg, key)
			c.Header("X-RateLimit-Reset", strconv.Itoa(reset))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":           http.StatusText(http.StatusTooManyRequests),
				"message":         "upload rate limit exceeded",
				"retry_after_sec": reset,
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.Limit-int(count)))
		c.Next()
	}
}

// retryAfter returns the seconds left in the window. A key that has lost
// its expiry gets a fresh one.
func retryAfter(ctx context.Context, cfg RateLimiterConfig, key string) int {
	ttl, err := cfg.Client.TTL(ctx, key).Result()
	if err != nil {
		logger.WithError(err).Warn("Rate limiter ttl failed")
		return int(cfg.Window.Seconds())
	}
	if ttl < 0 {
		if err := cfg.Client.Expire(ctx, key, cfg.Window).Err(); err != nil {
			logger.WithError(err).WithField("key", key).Warn("Rate limiter expire failed")
			cfg.Client.Del(ctx, key)
		}
		ttl = cfg.Window
	}
	return int(ttl.Seconds())
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
