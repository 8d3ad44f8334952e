// Package domain 包含库存服务的领域模型
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound 库存记录不存在
var ErrRecordNotFound = errors.New("inventory record not found")

// InventoryRecord 持久化库存记录，是其他读路径的事实来源。
// 只能通过原子预占/释放脚本与投影修改，数量永不为负。
type InventoryRecord struct {
	ProductID string
	Quantity  int64
	UpdatedAt time.Time
}

// ReservationOutcome 原子预占的结果。INSUFFICIENT 与 DUPLICATE 是预期的控制流结果，
// 不是错误。
type ReservationOutcome string

const (
	// OutcomeReserved 预占成功，库存已扣减
	OutcomeReserved ReservationOutcome = "OK"
	// OutcomeInsufficient 库存不足，无状态变更
	OutcomeInsufficient ReservationOutcome = "INSUFFICIENT"
	// OutcomeDuplicate 同一订单在去重窗口内的重放，无状态变更
	OutcomeDuplicate ReservationOutcome = "DUPLICATE"
)

// StockStore 快速路径库存存取。Reserve/Release 必须是单次往返的原子操作，
// 这是整个系统唯一的跨请求临界区。
type StockStore interface {
	// Reserve 原子预占：订单去重检查 → 库存充足检查 → 扣减 + 写入去重标记（带 TTL）
	Reserve(ctx context.Context, productID, orderID string, quantity int64, dedupTTL time.Duration) (ReservationOutcome, error)
	// Release 原子释放：回加库存并清除该订单在此商品上的去重标记。
	// 本层不幂等（重放会重复回加），调用方必须经由发件箱/台账保证每次补偿至多一次释放。
	Release(ctx context.Context, productID, orderID string, quantity int64) error
	// SetStock 设置商品库存（供给/初始化）
	SetStock(ctx context.Context, productID string, quantity int64) error
	// GetStock 读取商品当前库存
	GetStock(ctx context.Context, productID string) (int64, error)
}

// LedgerEntryType 台账条目类型
type LedgerEntryType string

const (
	// LedgerReserved 预占扣减
	LedgerReserved LedgerEntryType = "RESERVED"
	// LedgerReleased 补偿回加
	LedgerReleased LedgerEntryType = "RELEASED"
)

// LedgerEntry 库存台账条目。以发件箱事件 ID 为主键：存在即表示该事件已投影，
// 台账只插入、从不更新，是投影幂等性的持久依据。
type LedgerEntry struct {
	OutboxID  uint64
	EventType LedgerEntryType
	ProductID string
	Quantity  int64
	CreatedAt time.Time
}

// ProjectionTx 投影事务内可用的操作集合
type ProjectionTx interface {
	// LedgerExists 判断该发件箱事件是否已投影
	LedgerExists(outboxID uint64) (bool, error)
	// InsertLedger 写入台账条目
	InsertLedger(entry *LedgerEntry) error
	// AdjustStock 调整持久库存。delta 为负时带库存充足守卫，返回是否实际生效
	AdjustStock(productID string, delta int64) (bool, error)
}

// ProjectionUnit 投影的事务边界：fn 内的所有操作在一个本地事务中提交或回滚
type ProjectionUnit interface {
	InTx(ctx context.Context, fn func(tx ProjectionTx) error) error
}

// InventoryRepository 持久库存记录的读与供给入口
type InventoryRepository interface {
	// Get 读取库存记录，不存在时返回 ErrRecordNotFound
	Get(ctx context.Context, productID string) (*InventoryRecord, error)
	// Upsert 写入库存记录（供给/初始化）
	Upsert(ctx context.Context, record *InventoryRecord) error
}
