// Package messaging 将库存服务的发件箱事件接到 Kafka 主题与同址投影。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/application"
	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

// RegisterPublishers 为库存服务的每个发件箱事件类型注册发布函数。
// 发布时把发件箱行 ID 写入负载的 event_id，下游以它做持久去重。
// stock-reserved / stock-released 在发布后、标记 SENT 前执行持久库存投影：
// 任一步失败则该行不会 SENT，重放由投影台账与下游幂等消费兜底。
func RegisterPublishers(relay *outbox.Relay, producer *mq.Producer, projector *application.Projector) {
	relay.Register(domain.TopicStockReserved, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.StockReservedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed stock-reserved payload: %w", err)
		}
		evt.EventID = eventID(event)

		if err := send(ctx, producer, domain.TopicStockReserved, evt.OrderID, &evt); err != nil {
			return err
		}
		return projector.Project(ctx, event.ID, evt.ProductID, evt.Quantity, domain.LedgerReserved)
	})

	relay.Register(domain.TopicStockReleased, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.StockReleasedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed stock-released payload: %w", err)
		}
		evt.EventID = eventID(event)

		if err := send(ctx, producer, domain.TopicStockReleased, evt.OrderID, &evt); err != nil {
			return err
		}
		return projector.Project(ctx, event.ID, evt.ProductID, evt.Quantity, domain.LedgerReleased)
	})

	relay.Register(domain.TopicStockRejected, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.StockRejectedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed stock-rejected payload: %w", err)
		}
		evt.EventID = eventID(event)
		return send(ctx, producer, domain.TopicStockRejected, evt.OrderID, &evt)
	})

	relay.Register(domain.TopicProductStockDecreased, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.ProductStockDecreasedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed product-stock-decreased payload: %w", err)
		}
		evt.EventID = eventID(event)
		// 按商品分区：商品目录侧按商品维度保序即可
		return send(ctx, producer, domain.TopicProductStockDecreased, evt.ProductID, &evt)
	})
}

func eventID(event *outbox.Event) string {
	return strconv.FormatUint(event.ID, 10)
}

func send(ctx context.Context, producer *mq.Producer, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return producer.SendRaw(ctx, topic, key, data)
}
