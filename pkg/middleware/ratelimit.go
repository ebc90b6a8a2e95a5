package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fundreporting/pkg/config"
	"github.com/wyfcoding/fundreporting/pkg/logger"
	"github.com/wyfcoding/fundreporting/pkg/ratelimit"
)

// QuotaFromConfig 写配额未配置时沿用读配额
func QuotaFromConfig(cfg config.RateLimitConfig) ratelimit.Quota {
	write := ratelimit.PerSecond(cfg.WriteQPS, cfg.WriteBurst)
	if cfg.WriteQPS <= 0 {
		write = ratelimit.PerSecond(cfg.QPS, cfg.Burst)
	}
	return ratelimit.Quota{
		Read:  ratelimit.PerSecond(cfg.QPS, cfg.Burst),
		Write: write,
	}
}

// RateLimitMiddleware 按调用方与读写类别限流：已鉴权请求以 subject 为键，否则以客户端 IP 为键
func RateLimitMiddleware(limiter ratelimit.Limiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	quota := QuotaFromConfig(cfg)
	return func(c *gin.Context) {
		if !cfg.Enabled || limiter == nil {
			c.Next()
			return
		}

		subject := c.GetString(SubjectKey)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		scope := ratelimit.ScopeOf(c.Request.Method)
		limit := quota.For(scope)

		d, err := limiter.Allow(c.Request.Context(), ratelimit.Key(scope, subject), limit)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "Rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(d.ResetAfter/time.Second), 10))

		if !d.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(d.RetryAfter/time.Second)+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many " + string(scope) + " requests",
				"code":    "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}
