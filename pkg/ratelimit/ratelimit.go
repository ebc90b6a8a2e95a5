// Package ratelimit 按调用方与读写类别限流，配额存于 Redis（GCRA），多副本共享
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix 限流键前缀
const KeyPrefix = "reporting:ratelimit"

// Scope 请求类别。保存、提交、撤回、审计等写请求与查询分开计量
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// ScopeOf 按 HTTP 方法划分读写
func ScopeOf(method string) Scope {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeRead
	default:
		return ScopeWrite
	}
}

// Key 限流键：reporting:ratelimit:<scope>:<subject>
func Key(scope Scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, scope, subject)
}

// Limit 每个 Period 允许 Rate 次，突发上限 Burst
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// PerSecond burst 小于 rate 时按 rate 计
func PerSecond(rate, burst int) Limit {
	if burst < rate {
		burst = rate
	}
	return Limit{Rate: rate, Burst: burst, Period: time.Second}
}

// Quota 读写分级配额
type Quota struct {
	Read  Limit
	Write Limit
}

func (q Quota) For(scope Scope) Limit {
	if scope == ScopeWrite {
		return q.Write
	}
	return q.Read
}

// Decision 单次判定结果
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Limiter 限流判定
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}

// RedisLimiter 基于 redis_rate 的实现
type RedisLimiter struct {
	limiter *redis_rate.Limiter
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{limiter: redis_rate.NewLimiter(rdb)}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Burst:  limit.Burst,
		Period: limit.Period,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
