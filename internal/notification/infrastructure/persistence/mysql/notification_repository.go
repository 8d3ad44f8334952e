// Package mysql 提供通知记录的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/orderfulfillment/internal/notification/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
)

// NotificationModel 通知记录数据库模型
type NotificationModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	EventID   string    `gorm:"column:event_id;type:varchar(64);uniqueIndex;not null"`
	Kind      string    `gorm:"column:kind;type:varchar(32);not null"`
	OrderID   string    `gorm:"column:order_id;type:varchar(32);index"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);index"`
	Message   string    `gorm:"column:message;type:varchar(512)"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "notifications"
}

// notificationRepositoryImpl domain.NotificationRepository 的 GORM 实现
type notificationRepositoryImpl struct {
	db *db.DB
}

// NewNotificationRepository 创建通知仓储实例
func NewNotificationRepository(database *db.DB) domain.NotificationRepository {
	return &notificationRepositoryImpl{db: database}
}

// Record 实现 domain.NotificationRepository.Record
func (r *notificationRepositoryImpl) Record(ctx context.Context, notification *domain.Notification) (bool, error) {
	model := &NotificationModel{
		EventID:   notification.EventID,
		Kind:      notification.Kind,
		OrderID:   notification.OrderID,
		UserID:    notification.UserID,
		Message:   notification.Message,
		CreatedAt: notification.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	return true, nil
}

// ListByUser 实现 domain.NotificationRepository.ListByUser
func (r *notificationRepositoryImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*domain.Notification, 0, len(models))
	for _, model := range models {
		notifications = append(notifications, &domain.Notification{
			ID:        model.ID,
			EventID:   model.EventID,
			Kind:      model.Kind,
			OrderID:   model.OrderID,
			UserID:    model.UserID,
			Message:   model.Message,
			CreatedAt: model.CreatedAt,
		})
	}
	return notifications, nil
}
