package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

// eventWriterImpl domain.EventWriter 的发件箱实现：
// 一次调用的所有事件在同一个本地事务内落库，要么全部进入发件箱要么全不。
type eventWriterImpl struct {
	db *db.DB
}

// NewEventWriter 创建事件写入器
func NewEventWriter(database *db.DB) domain.EventWriter {
	return &eventWriterImpl{db: database}
}

// WriteInTx 实现 domain.EventWriter.WriteInTx
func (w *eventWriterImpl) WriteInTx(ctx context.Context, aggregateType, aggregateID string, events ...domain.PendingEvent) error {
	if len(events) == 0 {
		return nil
	}
	return w.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, evt := range events {
			if err := outbox.PublishInTx(tx, aggregateType, aggregateID, evt.EventType, evt.Payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// OutcomesRecorded 实现 domain.EventWriter.OutcomesRecorded
func (w *eventWriterImpl) OutcomesRecorded(ctx context.Context, orderID string) (bool, error) {
	var count int64
	err := w.db.WithContext(ctx).Model(&outbox.Event{}).
		Where("aggregate_type = ? AND aggregate_id = ? AND event_type IN ?",
			"order", orderID,
			[]string{domain.TopicStockReserved, domain.TopicStockRejected, domain.TopicProductStockDecreased}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check recorded outcomes for order %s: %w", orderID, err)
	}
	return count > 0, nil
}
