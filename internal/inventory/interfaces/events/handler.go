// Package events 实现库存服务的 Kafka 消费入口。
package events

import (
	"context"
	"fmt"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/application"
	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

// EventHandler 库存服务的事件处理器
type EventHandler struct {
	reservation *application.ReservationService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(reservation *application.ReservationService) *EventHandler {
	return &EventHandler{reservation: reservation}
}

// RegisterRoutes 注册主题路由
func (h *EventHandler) RegisterRoutes(router *mq.Router) {
	router.Register(domain.TopicOrderCreated, h.handleOrderCreated)
	router.Register(domain.TopicReleaseStock, h.handleReleaseStock)
}

func (h *EventHandler) handleOrderCreated(ctx context.Context, msg *mq.Message) error {
	var evt domain.OrderCreatedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed order-created message: %w", err)
	}
	return h.reservation.HandleOrderCreated(ctx, &evt)
}

func (h *EventHandler) handleReleaseStock(ctx context.Context, msg *mq.Message) error {
	var evt domain.ReleaseStockEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed release-stock message: %w", err)
	}
	return h.reservation.HandleReleaseStock(ctx, &evt)
}
