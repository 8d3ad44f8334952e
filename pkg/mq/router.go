package mq

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// Handler 按主题注册的消息处理函数。返回 error 表示本次处理失败，
// 路由器会在有界重试耗尽后将消息转入死信主题。
type Handler func(ctx context.Context, msg *Message) error

// DeadLetterer 死信发布接口，生产实现为 DeadLetterQueue
type DeadLetterer interface {
	Send(ctx context.Context, original *Message, attempts int, cause error) error
}

// Router 显式的 topic→handler 注册表。
// 每个注册的主题由一个独立的消费循环驱动，循环内 FetchMessage → 处理 → CommitMessages，
// 消息在完成处理（成功、或转入死信）之前不会提交位点。
type Router struct {
	config      Config
	dlq         DeadLetterer
	maxAttempts int

	mu       sync.Mutex
	handlers map[string]Handler
	readers  []*kafka.Reader
	wg       sync.WaitGroup
}

// NewRouter 创建消息路由器
func NewRouter(cfg Config, dlq DeadLetterer, maxAttempts int) *Router {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Router{
		config:      cfg,
		dlq:         dlq,
		maxAttempts: maxAttempts,
		handlers:    make(map[string]Handler),
	}
}

// Register 注册主题处理器，重复注册同一主题时后者覆盖前者
func (r *Router) Register(topic string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = h
}

// Start 为每个注册的主题启动一个消费循环，阻塞直到 ctx 取消
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	for topic, h := range r.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        r.config.Brokers,
			Topic:          topic,
			GroupID:        r.config.GroupID,
			SessionTimeout: time.Duration(r.config.SessionTimeout) * time.Second,
			StartOffset:    kafka.FirstOffset,
			MaxBytes:       10e6,
		})
		r.readers = append(r.readers, reader)

		r.wg.Add(1)
		go r.consumeLoop(ctx, reader, topic, h)
	}
	r.mu.Unlock()

	<-ctx.Done()
	r.close()
	r.wg.Wait()
}

func (r *Router) consumeLoop(ctx context.Context, reader *kafka.Reader, topic string, h Handler) {
	defer r.wg.Done()
	logger.Info(ctx, "Kafka consumer started", "topic", topic, "group_id", r.config.GroupID)

	for {
		raw, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Kafka consumer shutting down", "topic", topic)
				return
			}
			logger.Error(ctx, "Failed to fetch message", "topic", topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		msg := &Message{
			Topic:     raw.Topic,
			Partition: raw.Partition,
			Offset:    raw.Offset,
			Key:       string(raw.Key),
			Value:     raw.Value,
			Time:      raw.Time,
		}

		r.process(ctx, msg, h)

		if err := reader.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Failed to commit offset", "topic", topic, "error", err)
		}
	}
}

// process 执行处理器，失败时按固定退避重试，重试耗尽后转入死信主题。
// 死信发布失败时不提交位点之外没有其他补救手段，只能记录日志等待人工处理。
func (r *Router) process(ctx context.Context, msg *Message, h Handler) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := h(ctx, msg); err != nil {
			lastErr = err
			logger.Warn(ctx, "Message handling failed",
				"topic", msg.Topic,
				"key", msg.Key,
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
			continue
		}
		return
	}

	if r.dlq == nil {
		logger.Error(ctx, "Message dropped after retries, no DLT configured",
			"topic", msg.Topic, "key", msg.Key, "error", lastErr)
		return
	}
	if err := r.dlq.Send(ctx, msg, r.maxAttempts, lastErr); err != nil {
		logger.Error(ctx, "Failed to route message to DLT",
			"topic", msg.Topic, "key", msg.Key, "error", err)
	} else {
		logger.Warn(ctx, "Message routed to DLT",
			"topic", msg.Topic, "key", msg.Key, "error", lastErr)
	}
}

func (r *Router) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reader := range r.readers {
		_ = reader.Close()
	}
}
