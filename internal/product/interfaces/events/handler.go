// Package events 实现商品目录同步的 Kafka 消费入口。
package events

import (
	"context"
	"fmt"

	"github.com/wyfcoding/orderfulfillment/internal/product/application"
	"github.com/wyfcoding/orderfulfillment/internal/product/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

// EventHandler 商品目录同步的事件处理器
type EventHandler struct {
	sync *application.SyncService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(sync *application.SyncService) *EventHandler {
	return &EventHandler{sync: sync}
}

// RegisterRoutes 注册主题路由
func (h *EventHandler) RegisterRoutes(router *mq.Router) {
	router.Register(domain.TopicProductStockDecreased, h.handleStockDecreased)
	router.Register(domain.TopicStockReleased, h.handleStockReleased)
}

func (h *EventHandler) handleStockDecreased(ctx context.Context, msg *mq.Message) error {
	var evt domain.ProductStockDecreasedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed product-stock-decreased message: %w", err)
	}
	return h.sync.HandleStockDecreased(ctx, &evt)
}

func (h *EventHandler) handleStockReleased(ctx context.Context, msg *mq.Message) error {
	var evt domain.StockReleasedEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return fmt.Errorf("malformed stock-released message: %w", err)
	}
	return h.sync.HandleStockReleased(ctx, &evt)
}
