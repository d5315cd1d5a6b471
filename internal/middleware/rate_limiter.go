package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	Scope       string        // Key namespace, so limiters on different routes count separately
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window (e.g., 1 minute)
	BlockTime   time.Duration // How long to block after exceeding limit
}

// RateLimiter provides IP-based fixed-window rate limiting using Redis
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig) *RateLimiter {
	if config.Scope == "" {
		config.Scope = "default"
	}
	return &RateLimiter{
		redis:  redisClient,
		config: config,
	}
}

// Middleware returns a Gin middleware function for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		clientIP := c.ClientIP()

		allowed, retryAfter, err := rl.CheckLimit(ctx, clientIP)
		if err != nil {
			// Fail open: Redis trouble must not lock users out
			logger.Log.Warn("Rate limiter unavailable",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Seconds())
			c.Header("Retry-After", fmt.Sprintf("%d", seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests. Please try again later.",
				"retryAfter": seconds,
			})
			return
		}

		c.Next()
	}
}

// CheckLimit counts one request from ip. Once the count exceeds MaxRequests
// the ip is blocked for BlockTime, independent of the counting window.
// Returns: (allowed bool, retryAfter duration, error)
func (rl *RateLimiter) CheckLimit(ctx context.Context, ip string) (bool, time.Duration, error) {
	if blocked, ttl, err := rl.blockedFor(ctx, ip); err != nil || blocked {
		return false, ttl, err
	}

	key := rl.counterKey(ip)

	// INCR + EXPIRE on first hit gives a fixed window counter
	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count <= int64(rl.config.MaxRequests) {
		return true, 0, nil
	}

	if rl.config.BlockTime > 0 {
		if err := rl.redis.Set(ctx, rl.blockKey(ip), 1, rl.config.BlockTime).Err(); err != nil {
			return false, 0, err
		}
		logger.Log.Warn("Client blocked by rate limiter",
			zap.String("scope", rl.config.Scope),
			zap.String("client_ip", ip),
			zap.Duration("block_time", rl.config.BlockTime),
		)
		return false, rl.config.BlockTime, nil
	}

	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.config.Window
	}
	return false, ttl, nil
}

// IsBlocked reports whether ip is currently serving a block.
func (rl *RateLimiter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	blocked, _, err := rl.blockedFor(ctx, ip)
	return blocked, err
}

func (rl *RateLimiter) blockedFor(ctx context.Context, ip string) (bool, time.Duration, error) {
	ttl, err := rl.redis.TTL(ctx, rl.blockKey(ip)).Result()
	if err != nil {
		return false, 0, err
	}
	// TTL is negative when the key is missing
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}

func (rl *RateLimiter) counterKey(ip string) string {
	return fmt.Sprintf("ratelimit:%s:%s", rl.config.Scope, ip)
}

func (rl *RateLimiter) blockKey(ip string) string {
	return fmt.Sprintf("ratelimit:block:%s:%s", rl.config.Scope, ip)
}
