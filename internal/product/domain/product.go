// Package domain 包含商品目录同步投影的领域模型。
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrProductNotFound 商品不存在
var ErrProductNotFound = errors.New("product not found")

// Product 商品目录中的可售数量视图，由库存事件异步同步
type Product struct {
	ProductID string
	Quantity  int64
	UpdatedAt time.Time
}

// 消费的事件主题
const (
	TopicProductStockDecreased = "product-stock-decreased"
	TopicStockReleased         = "stock-released"
)

// ProductStockDecreasedEvent 商品数量扣减（消费）
type ProductStockDecreasedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// StockReleasedEvent 预占已补偿，数量回加（消费）
type StockReleasedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// SyncTx 同步事务内可用的操作集合。台账以上游事件 ID 为主键，
// 与数量调整在同一事务内提交，重放要么命中台账要么整体重做。
type SyncTx interface {
	// Applied 判断该事件是否已应用
	Applied(eventID string) (bool, error)
	// MarkApplied 写入台账条目
	MarkApplied(eventID, productID string, delta int64) error
	// AdjustQuantity 调整商品数量，缺失记录自动补建
	AdjustQuantity(productID string, delta int64) error
}

// SyncUnit 同步投影的事务边界
type SyncUnit interface {
	InTx(ctx context.Context, fn func(tx SyncTx) error) error
}

// ProductRepository 商品目录读入口
type ProductRepository interface {
	// Get 读取商品，不存在时返回 ErrProductNotFound
	Get(ctx context.Context, productID string) (*Product, error)
}
