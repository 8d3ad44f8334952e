package outbox

import (
	"context"
	"time"

	"github.com/wyfcoding/orderfulfillment/pkg/cache"
)

// RedisLease 基于 Redis SETNX 的批次租约实现。
// 租约带 TTL，持有者异常退出后由过期回收，不需要显式的失效检测。
type RedisLease struct {
	cache  *cache.RedisCache
	key    string
	holder string
	ttl    time.Duration
}

// NewRedisLease 创建租约。holder 用于标识持有者（通常是实例 ID）。
func NewRedisLease(c *cache.RedisCache, key, holder string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLease{
		cache:  c,
		key:    key,
		holder: holder,
		ttl:    ttl,
	}
}

// Acquire 实现 Lease.Acquire
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	return l.cache.SetNX(ctx, l.key, l.holder, l.ttl)
}

// Release 实现 Lease.Release。只释放自己持有的租约。
func (l *RedisLease) Release(ctx context.Context) {
	current, err := l.cache.Get(ctx, l.key)
	if err != nil || current != l.holder {
		return
	}
	_ = l.cache.Delete(ctx, l.key)
}
