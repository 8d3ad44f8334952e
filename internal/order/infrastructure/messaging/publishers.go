// Package messaging 将订单服务的发件箱事件接到 Kafka 主题。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

// RegisterPublishers 为订单服务的每个发件箱事件类型注册发布函数。
// 发布时把发件箱行 ID 写入负载的 event_id，所有主题按订单号分区，
// 同一订单的事件在消费侧保序。
func RegisterPublishers(relay *outbox.Relay, producer *mq.Producer) {
	relay.Register(domain.TopicOrderCreated, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.OrderCreatedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed order-created payload: %w", err)
		}
		evt.EventID = eventID(event)
		return send(ctx, producer, domain.TopicOrderCreated, evt.OrderID, &evt)
	})

	relay.Register(domain.TopicReleaseStock, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.ReleaseStockEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed release-stock payload: %w", err)
		}
		evt.EventID = eventID(event)
		return send(ctx, producer, domain.TopicReleaseStock, evt.OrderID, &evt)
	})

	relay.Register(domain.TopicOrderConfirmed, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.OrderConfirmedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed order-confirmed payload: %w", err)
		}
		evt.EventID = eventID(event)
		return send(ctx, producer, domain.TopicOrderConfirmed, evt.OrderID, &evt)
	})

	relay.Register(domain.TopicOrderCancelled, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.OrderCancelledEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed order-cancelled payload: %w", err)
		}
		evt.EventID = eventID(event)
		return send(ctx, producer, domain.TopicOrderCancelled, evt.OrderID, &evt)
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
