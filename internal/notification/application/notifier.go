// Package application 实现通知服务的应用层。
// 投递目前是结构化日志加落库记录；对接真实渠道（短信、邮件）时替换 dispatch 即可。
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/orderfulfillment/internal/notification/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// NotifierService 通知投递
type NotifierService struct {
	repo domain.NotificationRepository
}

// NewNotifierService 创建通知服务
func NewNotifierService(repo domain.NotificationRepository) *NotifierService {
	return &NotifierService{repo: repo}
}

// NotifyOrderConfirmed 订单确认通知
func (s *NotifierService) NotifyOrderConfirmed(ctx context.Context, evt *domain.OrderConfirmedEvent) error {
	message := fmt.Sprintf("your order %s is confirmed, total %s", evt.OrderID, evt.TotalAmount)
	return s.dispatch(ctx, evt.EventID, domain.TopicOrderConfirmed, evt.OrderID, evt.UserID, message)
}

// NotifyOrderCancelled 订单取消通知
func (s *NotifierService) NotifyOrderCancelled(ctx context.Context, evt *domain.OrderCancelledEvent) error {
	message := fmt.Sprintf("your order %s was cancelled: %s", evt.OrderID, evt.Reason)
	return s.dispatch(ctx, evt.EventID, domain.TopicOrderCancelled, evt.OrderID, evt.UserID, message)
}

// NotifyPaymentSucceeded 支付成功通知
func (s *NotifierService) NotifyPaymentSucceeded(ctx context.Context, evt *domain.PaymentSucceededEvent) error {
	message := fmt.Sprintf("payment %s for order %s succeeded, amount %s", evt.PaymentID, evt.OrderID, evt.Amount)
	return s.dispatch(ctx, evt.EventID, domain.TopicPaymentSucceeded, evt.OrderID, evt.UserID, message)
}

// NotifyPaymentFailed 支付失败通知
func (s *NotifierService) NotifyPaymentFailed(ctx context.Context, evt *domain.PaymentFailedEvent) error {
	message := fmt.Sprintf("payment %s for order %s failed: %s", evt.PaymentID, evt.OrderID, evt.Reason)
	return s.dispatch(ctx, evt.EventID, domain.TopicPaymentFailed, evt.OrderID, evt.UserID, message)
}

// ListByUser 按用户列出最近通知
func (s *NotifierService) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// dispatch 落库并投递。event_id 撞唯一键说明是重投递，直接吸收。
func (s *NotifierService) dispatch(ctx context.Context, eventID, kind, orderID, userID, message string) error {
	if eventID == "" {
		return fmt.Errorf("notification event without event_id: kind=%s order=%s", kind, orderID)
	}

	first, err := s.repo.Record(ctx, &domain.Notification{
		EventID:   eventID,
		Kind:      kind,
		OrderID:   orderID,
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record notification for event %s: %w", eventID, err)
	}
	if !first {
		logger.Debug(ctx, "Duplicate notification absorbed", "event_id", eventID, "kind", kind)
		return nil
	}

	logger.Info(ctx, "Notification dispatched",
		"kind", kind, "order_id", orderID, "user_id", userID, "message", message)
	return nil
}
