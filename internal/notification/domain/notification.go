// Package domain 包含通知服务的领域模型。
package domain

import (
	"context"
	"time"
)

// 通知服务消费的事件主题
const (
	TopicOrderConfirmed   = "order-confirmed"
	TopicOrderCancelled   = "order-cancelled"
	TopicPaymentSucceeded = "payment-succeeded"
	TopicPaymentFailed    = "payment-failed"
)

// Notification 已投递的通知记录。event_id 唯一，重投递不产生第二条记录。
type Notification struct {
	ID        uint64
	EventID   string
	Kind      string
	OrderID   string
	UserID    string
	Message   string
	CreatedAt time.Time
}

// NotificationRepository 通知记录持久化入口
type NotificationRepository interface {
	// Record 写入通知记录，返回是否为首次写入（重复 event_id 返回 false）
	Record(ctx context.Context, notification *Notification) (bool, error)
	// ListByUser 按用户列出最近通知
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
}

// OrderConfirmedEvent 订单已确认（消费）
type OrderConfirmedEvent struct {
	EventID     string `json:"event_id"`
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	TotalAmount string `json:"total_amount"`
}

// OrderCancelledEvent 订单已取消（消费）
type OrderCancelledEvent struct {
	EventID string `json:"event_id"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

// PaymentSucceededEvent 支付成功（消费）
type PaymentSucceededEvent struct {
	EventID   string `json:"event_id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
}

// PaymentFailedEvent 支付失败（消费）
type PaymentFailedEvent struct {
	EventID   string `json:"event_id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}
