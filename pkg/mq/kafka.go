// Package mq 提供 Kafka producer/consumer 通用实现，支持按主题注册处理器、有界重试与死信主题
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// Config Kafka 配置
type Config struct {
	Brokers        []string
	GroupID        string
	SessionTimeout int
	MaxRetries     int
	RetryBackoff   int
}

// Producer Kafka 生产者
type Producer struct {
	writer *kafka.Writer
	config Config
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg Config) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
		Balancer:               &kafka.Hash{},
	}

	logger.Info(context.Background(), "Kafka producer created", "brokers", cfg.Brokers)
	return &Producer{
		writer: writer,
		config: cfg,
	}
}

// Send 发送单条消息，key 用于分区路由（同 key 保序）
func (p *Producer) Send(ctx context.Context, topic string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.SendRaw(ctx, topic, key, data)
}

// SendRaw 发送已序列化的消息体
func (p *Producer) SendRaw(ctx context.Context, topic string, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "Failed to send Kafka message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Message Kafka 消息结构
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Time      time.Time
}

// UnmarshalPayload 将消息值解析为 JSON
func (m *Message) UnmarshalPayload(dest interface{}) error {
	return json.Unmarshal(m.Value, dest)
}

// DeadLetterQueue 死信主题处理
type DeadLetterQueue struct {
	producer *Producer
	suffix   string
}

// NewDeadLetterQueue 创建死信队列发布器。死信主题为 <原主题><suffix>
func NewDeadLetterQueue(producer *Producer, suffix string) *DeadLetterQueue {
	if suffix == "" {
		suffix = ".dlt"
	}
	return &DeadLetterQueue{
		producer: producer,
		suffix:   suffix,
	}
}

// Send 将处理失败的消息发送到对应死信主题
func (dlq *DeadLetterQueue) Send(ctx context.Context, original *Message, attempts int, cause error) error {
	deadLetter := map[string]interface{}{
		"original_topic":    original.Topic,
		"original_key":      original.Key,
		"original_value":    string(original.Value),
		"original_offset":   original.Offset,
		"original_time":     original.Time,
		"failure_attempts":  attempts,
		"failure_error":     cause.Error(),
		"failure_timestamp": time.Now(),
	}

	return dlq.producer.Send(ctx, original.Topic+dlq.suffix, original.Key, deadLetter)
}
