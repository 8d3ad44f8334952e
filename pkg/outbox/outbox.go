// Package outbox 实现事务性发件箱：领域事件与业务状态变更在同一本地事务内落库，
// 由独立的中继任务异步发布，避免「先写库再发消息」的双写不一致。
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Status 发件箱行状态
type Status string

const (
	// StatusNew 待发布
	StatusNew Status = "NEW"
	// StatusSent 发布成功，终态
	StatusSent Status = "SENT"
	// StatusFailed 发布失败，等待人工或定时重新入队
	StatusFailed Status = "FAILED"
)

// Event 发件箱行。ID 由插入时自增分配，中继按 ID 升序发布以保持单服务内的因果顺序。
// 行发布后保留不删除，作为事件审计日志。
type Event struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	AggregateType string    `gorm:"column:aggregate_type;type:varchar(32);not null"`
	AggregateID   string    `gorm:"column:aggregate_id;type:varchar(64);index;not null"`
	EventType     string    `gorm:"column:event_type;type:varchar(64);index;not null"`
	Payload       string    `gorm:"column:payload;type:text;not null"`
	Status        Status    `gorm:"column:status;type:varchar(16);index;not null;default:'NEW'"`
	LastError     string    `gorm:"column:last_error;type:varchar(1024)"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
	SentAt        *time.Time `gorm:"column:sent_at"`
}

// TableName 指定表名。每个服务使用自己的数据库，表名可以共用。
func (Event) TableName() string {
	return "outbox_events"
}

// UnmarshalPayload 将事件负载解析为 JSON
func (e *Event) UnmarshalPayload(dest interface{}) error {
	return json.Unmarshal([]byte(e.Payload), dest)
}

// PublishInTx 在调用方的事务内插入一条待发布事件。
// tx 必须是承载业务状态变更的同一个事务，否则发件箱保证不成立。
func PublishInTx(tx *gorm.DB, aggregateType, aggregateID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	event := &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       string(data),
		Status:        StatusNew,
		CreatedAt:     time.Now(),
	}

	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// Store 发件箱存取接口，中继通过它轮询和推进行状态
type Store interface {
	// FetchNewBatch 按 ID 升序取最多 limit 条 NEW 行
	FetchNewBatch(ctx context.Context, limit int) ([]Event, error)
	// MarkSent 标记发布成功
	MarkSent(ctx context.Context, id uint64) error
	// MarkFailed 标记发布失败并记录原因
	MarkFailed(ctx context.Context, id uint64, cause string) error
	// RequeueFailed 将 FAILED 行重新置为 NEW，返回受影响行数
	RequeueFailed(ctx context.Context, ids []uint64) (int64, error)
}

// GormStore Store 的 GORM 实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建发件箱存储实例
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FetchNewBatch 实现 Store.FetchNewBatch
func (s *GormStore) FetchNewBatch(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusNew).
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox batch: %w", err)
	}
	return events, nil
}

// MarkSent 实现 Store.MarkSent
func (s *GormStore) MarkSent(ctx context.Context, id uint64) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusSent,
			"last_error": "",
			"sent_at":    &now,
		}).Error
}

// MarkFailed 实现 Store.MarkFailed
func (s *GormStore) MarkFailed(ctx context.Context, id uint64, cause string) error {
	if len(cause) > 1024 {
		cause = cause[:1024]
	}
	return s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusFailed,
			"last_error": cause,
		}).Error
}

// RequeueFailed 实现 Store.RequeueFailed
func (s *GormStore) RequeueFailed(ctx context.Context, ids []uint64) (int64, error) {
	query := s.db.WithContext(ctx).Model(&Event{}).Where("status = ?", StatusFailed)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	result := query.Updates(map[string]interface{}{
		"status":     StatusNew,
		"last_error": "",
	})
	return result.RowsAffected, result.Error
}
