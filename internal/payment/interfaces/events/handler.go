// Package events 实现支付服务的 Kafka 消费入口。
package events

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderfulfillment/internal/payment/application"
	"github.com/wyfcoding/orderfulfillment/internal/payment/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

// EventHandler 支付服务的事件处理器
type EventHandler struct {
	payments *application.PaymentService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(payments *application.PaymentService) *EventHandler {
	return &EventHandler{payments: payments}
}

// RegisterRoutes 注册主题路由
func (h *EventHandler) RegisterRoutes(router *mq.Router) {
	router.Register(domain.TopicOrderConfirmed, h.handleOrderConfirmed)
}

// handleOrderConfirmed 订单确认即建立 PENDING 支付单。
// 幂等键取上游事件 ID，重投递命中已有单。
func (h *EventHandler) handleOrderConfirmed(ctx context.Context, msg *mq.Message) error {
	var evt domain.OrderConfirmedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed order-confirmed message: %w", err)
	}

	amount, err := decimal.NewFromString(evt.TotalAmount)
	if err != nil {
		return fmt.Errorf("malformed total amount %q in order-confirmed: %w", evt.TotalAmount, err)
	}

	key := "order-confirmed:" + evt.EventID
	_, err = h.payments.CreateOrGetPendingByOrder(ctx, evt.OrderID, evt.UserID, amount, key)
	return err
}
