// Package domain 包含支付服务的领域模型。
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPaymentNotFound 支付单不存在
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicateKey 唯一键冲突（orderId 或 idempotencyKey 已存在）
	ErrDuplicateKey = errors.New("duplicate payment key")
)

// PaymentStatus 支付状态。PENDING 是唯一非终态，
// SUCCEEDED 与 FAILED 为终态，终态之间不迁移。
type PaymentStatus string

const (
	// StatusPending 待支付
	StatusPending PaymentStatus = "PENDING"
	// StatusSucceeded 支付成功，终态
	StatusSucceeded PaymentStatus = "SUCCEEDED"
	// StatusFailed 支付失败，终态
	StatusFailed PaymentStatus = "FAILED"
)

// Payment 支付单。orderId 与 idempotencyKey 均唯一，
// 一张订单至多一张支付单，重复创建返回已有单。
type Payment struct {
	ID             string
	OrderID        string
	UserID         string
	Amount         decimal.Decimal
	IdempotencyKey string
	Status         PaymentStatus
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal 是否处于终态
func (p *Payment) Terminal() bool {
	return p.Status == StatusSucceeded || p.Status == StatusFailed
}

// PendingEvent 待写入发件箱的事件
type PendingEvent struct {
	EventType string
	Payload   interface{}
}

// PaymentRepository 支付单持久化入口。
// Transition 把条件状态迁移与发件箱写入绑定在同一事务内：
// 迁移未命中（当前状态不是 from）时不写任何事件，返回 false。
type PaymentRepository interface {
	// Insert 插入支付单，唯一键冲突时返回 ErrDuplicateKey
	Insert(ctx context.Context, payment *Payment) error
	// FindByID 按支付单号查找
	FindByID(ctx context.Context, paymentID string) (*Payment, error)
	// FindByOrder 按订单号查找
	FindByOrder(ctx context.Context, orderID string) (*Payment, error)
	// FindByKey 按幂等键查找
	FindByKey(ctx context.Context, idempotencyKey string) (*Payment, error)
	// Transition 条件状态迁移 + 发件箱事件，返回是否实际迁移
	Transition(ctx context.Context, paymentID string, from, to PaymentStatus, reason string, event PendingEvent) (bool, error)
}
