// Package messaging 将支付服务的发件箱事件接到 Kafka 主题。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wyfcoding/orderfulfillment/internal/payment/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

// RegisterPublishers 为支付服务的每个发件箱事件类型注册发布函数。
// 按订单号分区，通知侧同一订单的支付事件保序。
func RegisterPublishers(relay *outbox.Relay, producer *mq.Producer) {
	relay.Register(domain.TopicPaymentSucceeded, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.PaymentSucceededEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed payment-succeeded payload: %w", err)
		}
		evt.EventID = strconv.FormatUint(event.ID, 10)
		return send(ctx, producer, domain.TopicPaymentSucceeded, evt.OrderID, &evt)
	})

	relay.Register(domain.TopicPaymentFailed, func(ctx context.Context, event *outbox.Event) error {
		var evt domain.PaymentFailedEvent
		if err := event.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("malformed payment-failed payload: %w", err)
		}
		evt.EventID = strconv.FormatUint(event.ID, 10)
		return send(ctx, producer, domain.TopicPaymentFailed, evt.OrderID, &evt)
	})
}

func send(ctx context.Context, producer *mq.Producer, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return producer.SendRaw(ctx, topic, key, data)
}
