// Package mysql 提供支付单的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/orderfulfillment/internal/payment/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

// PaymentModel 支付单数据库模型
type PaymentModel struct {
	ID             string          `gorm:"column:id;type:varchar(32);primaryKey"`
	OrderID        string          `gorm:"column:order_id;type:varchar(32);uniqueIndex;not null"`
	UserID         string          `gorm:"column:user_id;type:varchar(64);index;not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null"`
	IdempotencyKey string          `gorm:"column:idempotency_key;type:varchar(64);uniqueIndex;not null"`
	Status         string          `gorm:"column:status;type:varchar(16);index;not null"`
	Reason         string          `gorm:"column:reason;type:varchar(256)"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

// TableName 指定表名
func (PaymentModel) TableName() string {
	return "payments"
}

func toDomain(model *PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:             model.ID,
		OrderID:        model.OrderID,
		UserID:         model.UserID,
		Amount:         model.Amount,
		IdempotencyKey: model.IdempotencyKey,
		Status:         domain.PaymentStatus(model.Status),
		Reason:         model.Reason,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// paymentRepositoryImpl domain.PaymentRepository 的 GORM 实现
type paymentRepositoryImpl struct {
	db *db.DB
}

// NewPaymentRepository 创建支付仓储实例
func NewPaymentRepository(database *db.DB) domain.PaymentRepository {
	return &paymentRepositoryImpl{db: database}
}

// Insert 实现 domain.PaymentRepository.Insert
func (r *paymentRepositoryImpl) Insert(ctx context.Context, payment *domain.Payment) error {
	model := &PaymentModel{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		UserID:         payment.UserID,
		Amount:         payment.Amount,
		IdempotencyKey: payment.IdempotencyKey,
		Status:         string(payment.Status),
		Reason:         payment.Reason,
		CreatedAt:      payment.CreatedAt,
		UpdatedAt:      payment.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepositoryImpl) findOne(ctx context.Context, query string, arg interface{}) (*domain.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return toDomain(&model), nil
}

// FindByID 实现 domain.PaymentRepository.FindByID
func (r *paymentRepositoryImpl) FindByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return r.findOne(ctx, "id = ?", paymentID)
}

// FindByOrder 实现 domain.PaymentRepository.FindByOrder
func (r *paymentRepositoryImpl) FindByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, "order_id = ?", orderID)
}

// FindByKey 实现 domain.PaymentRepository.FindByKey
func (r *paymentRepositoryImpl) FindByKey(ctx context.Context, idempotencyKey string) (*domain.Payment, error) {
	return r.findOne(ctx, "idempotency_key = ?", idempotencyKey)
}

// Transition 实现 domain.PaymentRepository.Transition。
// 条件更新命中才写发件箱事件，两者在同一事务内提交。
func (r *paymentRepositoryImpl) Transition(ctx context.Context, paymentID string, from, to domain.PaymentStatus, reason string, event domain.PendingEvent) (bool, error) {
	moved := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&PaymentModel{}).
			Where("id = ? AND status = ?", paymentID, string(from)).
			Updates(map[string]interface{}{
				"status":     string(to),
				"reason":     reason,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update payment status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		moved = true
		return outbox.PublishInTx(tx, "payment", paymentID, event.EventType, event.Payload)
	})
	return moved, err
}
