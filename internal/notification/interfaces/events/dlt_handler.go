package events

import (
	"context"
	"encoding/json"

	"github.com/wyfcoding/orderfulfillment/internal/notification/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

// DLTHandler 消费本服务死信主题的毒消息，记录后等待人工处理。
// 处理器永远返回 nil：死信主题不能再产生死信。
type DLTHandler struct {
	metrics *metrics.Metrics
	suffix  string
}

// NewDLTHandler 创建死信处理器
func NewDLTHandler(m *metrics.Metrics, suffix string) *DLTHandler {
	if suffix == "" {
		suffix = ".dlt"
	}
	return &DLTHandler{metrics: m, suffix: suffix}
}

// RegisterRoutes 为每个受保护主题注册对应的死信路由
func (h *DLTHandler) RegisterRoutes(router *mq.Router) {
	for _, topic := range []string{
		domain.TopicOrderConfirmed,
		domain.TopicOrderCancelled,
		domain.TopicPaymentSucceeded,
		domain.TopicPaymentFailed,
	} {
		router.Register(topic+h.suffix, h.handleDeadLetter)
	}
}

func (h *DLTHandler) handleDeadLetter(ctx context.Context, msg *mq.Message) error {
	var envelope map[string]interface{}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		envelope = map[string]interface{}{"raw": string(msg.Value)}
	}

	logger.Error(ctx, "Poison message parked in DLT, manual remediation required",
		"dlt_topic", msg.Topic,
		"key", msg.Key,
		"original_topic", envelope["original_topic"],
		"failure_error", envelope["failure_error"],
		"failure_attempts", envelope["failure_attempts"],
	)

	if h.metrics != nil {
		h.metrics.DeadLetteredTotal.Inc()
	}
	return nil
}
