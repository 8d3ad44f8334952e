// Package events 实现订单服务的 Kafka 消费入口。
package events

import (
	"context"
	"fmt"

	"github.com/wyfcoding/orderfulfillment/internal/order/application"
	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

// EventHandler 订单服务的事件处理器
type EventHandler struct {
	saga *application.SagaService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(saga *application.SagaService) *EventHandler {
	return &EventHandler{saga: saga}
}

// RegisterRoutes 注册主题路由
func (h *EventHandler) RegisterRoutes(router *mq.Router) {
	router.Register(domain.TopicStockReserved, h.handleStockReserved)
	router.Register(domain.TopicStockRejected, h.handleStockRejected)
}

func (h *EventHandler) handleStockReserved(ctx context.Context, msg *mq.Message) error {
	var evt domain.StockReservedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed stock-reserved message: %w", err)
	}
	return h.saga.HandleStockReserved(ctx, &evt)
}

func (h *EventHandler) handleStockRejected(ctx context.Context, msg *mq.Message) error {
	var evt domain.StockRejectedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed stock-rejected message: %w", err)
	}
	return h.saga.HandleStockRejected(ctx, &evt)
}
