package outbox

import (
	"context"
	"time"

	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
)

// PublishFunc 单个事件类型的发布函数：反序列化负载、发送到对应主题、
// 并执行与发布同址的投影（如有）。返回 nil 后该行才会被标记 SENT。
type PublishFunc func(ctx context.Context, event *Event) error

// Lease 中继批次租约。多实例部署时只有持有租约的实例发布，避免重复发布。
type Lease interface {
	// Acquire 尝试获取租约，返回是否成功
	Acquire(ctx context.Context) (bool, error)
	// Release 释放租约
	Release(ctx context.Context)
}

// Relay 发件箱中继：固定间隔轮询 NEW 行并逐行发布。
// 每行的结果相互独立，单行失败不阻塞同批次的后续行。
// NEW 行会在后续轮询中无限重试；FAILED 行只有显式重新入队后才会再次处理。
type Relay struct {
	store     Store
	interval  time.Duration
	batchSize int
	lease     Lease
	metrics   *metrics.Metrics
	handlers  map[string]PublishFunc
}

// NewRelay 创建中继实例
func NewRelay(store Store, interval time.Duration, batchSize int, lease Lease, m *metrics.Metrics) *Relay {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		interval:  interval,
		batchSize: batchSize,
		lease:     lease,
		metrics:   m,
		handlers:  make(map[string]PublishFunc),
	}
}

// Register 注册事件类型的发布函数
func (r *Relay) Register(eventType string, fn PublishFunc) {
	r.handlers[eventType] = fn
}

// Run 阻塞运行中继循环，直到 ctx 取消
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info(ctx, "Outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Outbox relay stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick 执行一次轮询
func (r *Relay) tick(ctx context.Context) {
	if r.lease != nil {
		ok, err := r.lease.Acquire(ctx)
		if err != nil {
			logger.Error(ctx, "Outbox relay lease acquisition failed", "error", err)
			return
		}
		if !ok {
			return
		}
		defer r.lease.Release(ctx)
	}

	events, err := r.store.FetchNewBatch(ctx, r.batchSize)
	if err != nil {
		logger.Error(ctx, "Outbox relay fetch failed", "error", err)
		return
	}

	for i := range events {
		event := &events[i]
		r.publish(ctx, event)
	}
}

// publish 发布单行并推进其状态
func (r *Relay) publish(ctx context.Context, event *Event) {
	fn, ok := r.handlers[event.EventType]
	if !ok {
		// 未知事件类型：记录并置为 FAILED，保证操作者可见，而不是无限盲重试
		logger.Error(ctx, "No publisher registered for outbox event type",
			"event_id", event.ID, "event_type", event.EventType)
		r.markFailed(ctx, event, "no publisher registered for event type "+event.EventType)
		return
	}

	if err := fn(ctx, event); err != nil {
		logger.Error(ctx, "Outbox event publish failed",
			"event_id", event.ID,
			"event_type", event.EventType,
			"aggregate_id", event.AggregateID,
			"error", err,
		)
		r.markFailed(ctx, event, err.Error())
		return
	}

	if err := r.store.MarkSent(ctx, event.ID); err != nil {
		// 标记失败时该行保持 NEW，下轮会重新发布；下游以幂等消费兜底
		logger.Error(ctx, "Failed to mark outbox event as sent", "event_id", event.ID, "error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.OutboxPublishedTotal.Inc()
	}
	logger.Debug(ctx, "Outbox event published",
		"event_id", event.ID, "event_type", event.EventType, "aggregate_id", event.AggregateID)
}

func (r *Relay) markFailed(ctx context.Context, event *Event, cause string) {
	if err := r.store.MarkFailed(ctx, event.ID, cause); err != nil {
		logger.Error(ctx, "Failed to mark outbox event as failed", "event_id", event.ID, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.OutboxFailedTotal.Inc()
	}
}
