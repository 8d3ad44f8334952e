// Package redis 提供快速路径库存存取的 Redis 实现。
// 预占与释放各是一段服务端 Lua 脚本：脚本内的读-判-写在 Redis 单线程内
// 不可分割地执行，同一商品的并发预占在此串行化，库存永不为负、
// 同一订单在去重窗口内不会重复扣减。拆成多次往返的读改写没有这个保证，禁止使用。
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/cache"
)

// 脚本返回值约定：1 预占成功，0 库存不足，2 重复请求
const (
	scriptResultReserved     = 1
	scriptResultInsufficient = 0
	scriptResultDuplicate    = 2
)

// reserveScript 原子预占。
// KEYS[1]: stock:{productId}（整数库存）
// KEYS[2]: order:seen:{orderId}（该订单已预占商品的集合，带 TTL）
// ARGV[1]: 预占数量  ARGV[2]: productId  ARGV[3]: 去重 TTL（秒）
var reserveScript = goredis.NewScript(`
if redis.call('sismember', KEYS[2], ARGV[2]) == 1 then
    return 2
end

local stock = tonumber(redis.call('get', KEYS[1]))

if stock and stock >= tonumber(ARGV[1]) then
    redis.call('decrby', KEYS[1], ARGV[1])
    redis.call('sadd', KEYS[2], ARGV[2])
    redis.call('expire', KEYS[2], ARGV[3])
    return 1
else
    return 0
end
`)

// releaseScript 原子释放：回加库存并清除该订单在此商品上的去重标记。
// 重放会再次回加——本层有意不做幂等，至多一次释放由上游发件箱/台账层保证。
// KEYS[1]: stock:{productId}  KEYS[2]: order:seen:{orderId}
// ARGV[1]: 释放数量  ARGV[2]: productId
var releaseScript = goredis.NewScript(`
redis.call('incrby', KEYS[1], ARGV[1])
redis.call('srem', KEYS[2], ARGV[2])
return 1
`)

// StockStore domain.StockStore 的 Redis 实现
type StockStore struct {
	cache *cache.RedisCache
}

// NewStockStore 创建库存存取实例
func NewStockStore(c *cache.RedisCache) *StockStore {
	return &StockStore{cache: c}
}

// Reserve 实现 domain.StockStore.Reserve
func (s *StockStore) Reserve(ctx context.Context, productID, orderID string, quantity int64, dedupTTL time.Duration) (domain.ReservationOutcome, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("invalid reservation quantity: %d", quantity)
	}

	keys := []string{stockKey(productID), seenKey(orderID)}
	args := []interface{}{quantity, productID, int64(dedupTTL.Seconds())}

	result, err := s.cache.RunScript(ctx, reserveScript, keys, args...)
	if err != nil {
		return "", fmt.Errorf("reserve script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return "", fmt.Errorf("unexpected result type from reserve script: %T", result)
	}

	switch code {
	case scriptResultReserved:
		return domain.OutcomeReserved, nil
	case scriptResultInsufficient:
		return domain.OutcomeInsufficient, nil
	case scriptResultDuplicate:
		return domain.OutcomeDuplicate, nil
	default:
		return "", fmt.Errorf("unknown result code from reserve script: %d", code)
	}
}

// Release 实现 domain.StockStore.Release
func (s *StockStore) Release(ctx context.Context, productID, orderID string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid release quantity: %d", quantity)
	}

	keys := []string{stockKey(productID), seenKey(orderID)}
	if _, err := s.cache.RunScript(ctx, releaseScript, keys, quantity, productID); err != nil {
		return fmt.Errorf("release script failed: %w", err)
	}
	return nil
}

// SetStock 实现 domain.StockStore.SetStock
func (s *StockStore) SetStock(ctx context.Context, productID string, quantity int64) error {
	return s.cache.Set(ctx, stockKey(productID), quantity, 0)
}

// GetStock 实现 domain.StockStore.GetStock
func (s *StockStore) GetStock(ctx context.Context, productID string) (int64, error) {
	val, err := s.cache.Get(ctx, stockKey(productID))
	if err != nil {
		return 0, err
	}
	if val == "" {
		return 0, nil
	}
	return strconv.ParseInt(val, 10, 64)
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:%s", productID)
}

func seenKey(orderID string) string {
	return fmt.Sprintf("order:seen:%s", orderID)
}
