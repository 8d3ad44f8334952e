// Package ratelimit 提供基于 Redis 的固定窗口限流器
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断 key 在当前窗口内是否还允许一次请求
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter 固定窗口实现。INCR + 首次设置过期，窗口边界有少量突刺，
// 对订单入口这种粗粒度保护足够。
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter 创建限流器
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// Allow 实现 RateLimiter.Allow
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		logger.Error(ctx, "Rate limiter INCR failed", "key", redisKey, "error", err)
		return false, err
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, window).Err(); err != nil {
			logger.Error(ctx, "Rate limiter EXPIRE failed", "key", redisKey, "error", err)
		}
	}

	return count <= int64(limit), nil
}
