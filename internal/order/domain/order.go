// Package domain 包含订单服务的领域模型与 saga 状态机。
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrOrderNotFound 订单不存在
var ErrOrderNotFound = errors.New("order not found")

// OrderStatus 订单状态。PENDING 是唯一的非终态：
// PENDING → CONFIRMED（全部行预占成功）或 PENDING → CANCELLED（任一行被拒），
// 终态之间不互相迁移。
type OrderStatus string

const (
	// StatusPending 等待库存预占结果
	StatusPending OrderStatus = "PENDING"
	// StatusConfirmed 全部行预占成功，终态
	StatusConfirmed OrderStatus = "CONFIRMED"
	// StatusCancelled 任一行预占被拒，终态
	StatusCancelled OrderStatus = "CANCELLED"
)

// ItemStatus 订单行状态
type ItemStatus string

const (
	// ItemPending 等待预占结果
	ItemPending ItemStatus = "PENDING"
	// ItemReserved 预占成功
	ItemReserved ItemStatus = "RESERVED"
	// ItemRejected 预占被拒（库存不足）
	ItemRejected ItemStatus = "REJECTED"
)

// OrderItem 订单行
type OrderItem struct {
	OrderID   string
	ProductID string
	Size      string
	Quantity  int64
	UnitPrice decimal.Decimal
	Status    ItemStatus
}

// Subtotal 行小计
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Order 订单聚合根
type Order struct {
	ID          string
	UserID      string
	TotalAmount decimal.Decimal
	Status      OrderStatus
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item 按商品查找订单行，不存在时返回 nil
func (o *Order) Item(productID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// AllReserved 是否全部行已预占成功
func (o *Order) AllReserved() bool {
	for i := range o.Items {
		if o.Items[i].Status != ItemReserved {
			return false
		}
	}
	return len(o.Items) > 0
}

// PendingEvent 待写入发件箱的事件
type PendingEvent struct {
	EventType string
	Payload   interface{}
}

// OrderRepository 订单持久化入口
type OrderRepository interface {
	// Create 在一个本地事务内写入订单、订单行与给定的发件箱事件
	Create(ctx context.Context, order *Order, events ...PendingEvent) error
	// Get 读取订单及其订单行，不存在时返回 ErrOrderNotFound
	Get(ctx context.Context, orderID string) (*Order, error)
	// ListByUser 按用户分页列出订单
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Order, int64, error)
}

// SagaTx saga 事务内可用的操作集合。GetOrderForUpdate 对订单行加排它锁，
// 同一订单的并发结果事件在此串行化，状态检查与迁移因而是原子的。
type SagaTx interface {
	// GetOrderForUpdate 加锁读取订单及其订单行
	GetOrderForUpdate(orderID string) (*Order, error)
	// SetItemStatus 更新单个订单行状态
	SetItemStatus(orderID, productID string, status ItemStatus) error
	// SetOrderStatus 更新订单状态
	SetOrderStatus(orderID string, status OrderStatus) error
	// AppendEvent 在同一事务内写入发件箱事件
	AppendEvent(aggregateID, eventType string, payload interface{}) error
	// MarkEventConsumed 以事件 ID 入账本次消费，首次返回 true，重复返回 false。
	// 供没有订单行可做状态检查的路径（未知订单的补偿）去重。
	MarkEventConsumed(eventID string) (bool, error)
}

// SagaUnit saga 的事务边界
type SagaUnit interface {
	InTx(ctx context.Context, fn func(tx SagaTx) error) error
}
