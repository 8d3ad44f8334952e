// Package events 实现通知服务的 Kafka 消费入口。
package events

import (
	"context"
	"fmt"

	"github.com/wyfcoding/orderfulfillment/internal/notification/application"
	"github.com/wyfcoding/orderfulfillment/internal/notification/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

// EventHandler 通知服务的事件处理器
type EventHandler struct {
	notifier *application.NotifierService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(notifier *application.NotifierService) *EventHandler {
	return &EventHandler{notifier: notifier}
}

// RegisterRoutes 注册主题路由
func (h *EventHandler) RegisterRoutes(router *mq.Router) {
	router.Register(domain.TopicOrderConfirmed, h.handleOrderConfirmed)
	router.Register(domain.TopicOrderCancelled, h.handleOrderCancelled)
	router.Register(domain.TopicPaymentSucceeded, h.handlePaymentSucceeded)
	router.Register(domain.TopicPaymentFailed, h.handlePaymentFailed)
}

func (h *EventHandler) handleOrderConfirmed(ctx context.Context, msg *mq.Message) error {
	var evt domain.OrderConfirmedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed order-confirmed message: %w", err)
	}
	return h.notifier.NotifyOrderConfirmed(ctx, &evt)
}

func (h *EventHandler) handleOrderCancelled(ctx context.Context, msg *mq.Message) error {
	var evt domain.OrderCancelledEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed order-cancelled message: %w", err)
	}
	return h.notifier.NotifyOrderCancelled(ctx, &evt)
}

func (h *EventHandler) handlePaymentSucceeded(ctx context.Context, msg *mq.Message) error {
	var evt domain.PaymentSucceededEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed payment-succeeded message: %w", err)
	}
	return h.notifier.NotifyPaymentSucceeded(ctx, &evt)
}

func (h *EventHandler) handlePaymentFailed(ctx context.Context, msg *mq.Message) error {
	var evt domain.PaymentFailedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed payment-failed message: %w", err)
	}
	return h.notifier.NotifyPaymentFailed(ctx, &evt)
}
