// Package mysql 提供库存记录、库存台账与投影事务边界的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// InventoryRecordModel 库存记录数据库模型
type InventoryRecordModel struct {
	ProductID string    `gorm:"column:product_id;type:varchar(64);primaryKey"`
	Quantity  int64     `gorm:"column:quantity;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (InventoryRecordModel) TableName() string {
	return "inventory_records"
}

// StockLedgerModel 库存台账数据库模型。outbox_id 为主键，只插入、从不更新。
type StockLedgerModel struct {
	OutboxID  uint64    `gorm:"column:outbox_id;primaryKey"`
	EventType string    `gorm:"column:event_type;type:varchar(16);not null"`
	ProductID string    `gorm:"column:product_id;type:varchar(64);index;not null"`
	Quantity  int64     `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName 指定表名
func (StockLedgerModel) TableName() string {
	return "stock_ledger"
}

// inventoryRepositoryImpl domain.InventoryRepository 的 GORM 实现
type inventoryRepositoryImpl struct {
	db *db.DB
}

// NewInventoryRepository 创建库存仓储实例
func NewInventoryRepository(database *db.DB) domain.InventoryRepository {
	return &inventoryRepositoryImpl{db: database}
}

// Get 实现 domain.InventoryRepository.Get
func (r *inventoryRepositoryImpl) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	var model InventoryRecordModel
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		logger.Error(ctx, "inventory_repository.get failed", "product_id", productID, "error", err)
		return nil, fmt.Errorf("failed to get inventory record: %w", err)
	}

	return &domain.InventoryRecord{
		ProductID: model.ProductID,
		Quantity:  model.Quantity,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// Upsert 实现 domain.InventoryRepository.Upsert
func (r *inventoryRepositoryImpl) Upsert(ctx context.Context, record *domain.InventoryRecord) error {
	model := &InventoryRecordModel{
		ProductID: record.ProductID,
		Quantity:  record.Quantity,
	}
	err := r.db.UpsertWithConflict(ctx, model, []string{"product_id"}, []string{"quantity", "updated_at"})
	if err != nil {
		logger.Error(ctx, "inventory_repository.upsert failed", "product_id", record.ProductID, "error", err)
		return fmt.Errorf("failed to upsert inventory record: %w", err)
	}
	return nil
}

// projectionUnitImpl domain.ProjectionUnit 的 GORM 实现
type projectionUnitImpl struct {
	db *db.DB
}

// NewProjectionUnit 创建投影事务边界实例
func NewProjectionUnit(database *db.DB) domain.ProjectionUnit {
	return &projectionUnitImpl{db: database}
}

// InTx 实现 domain.ProjectionUnit.InTx
func (u *projectionUnitImpl) InTx(ctx context.Context, fn func(tx domain.ProjectionTx) error) error {
	return u.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&projectionTxImpl{tx: tx})
	})
}

// projectionTxImpl 投影事务内操作的 GORM 实现
type projectionTxImpl struct {
	tx *gorm.DB
}

// LedgerExists 实现 domain.ProjectionTx.LedgerExists
func (t *projectionTxImpl) LedgerExists(outboxID uint64) (bool, error) {
	var count int64
	err := t.tx.Model(&StockLedgerModel{}).Where("outbox_id = ?", outboxID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check stock ledger: %w", err)
	}
	return count > 0, nil
}

// InsertLedger 实现 domain.ProjectionTx.InsertLedger
func (t *projectionTxImpl) InsertLedger(entry *domain.LedgerEntry) error {
	model := &StockLedgerModel{
		OutboxID:  entry.OutboxID,
		EventType: string(entry.EventType),
		ProductID: entry.ProductID,
		Quantity:  entry.Quantity,
		CreatedAt: entry.CreatedAt,
	}
	if err := t.tx.Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert stock ledger entry: %w", err)
	}
	return nil
}

// AdjustStock 实现 domain.ProjectionTx.AdjustStock。
// 扣减走条件更新（quantity 充足才生效），回加对缺失记录自动补建。
func (t *projectionTxImpl) AdjustStock(productID string, delta int64) (bool, error) {
	if delta < 0 {
		result := t.tx.Model(&InventoryRecordModel{}).
			Where("product_id = ? AND quantity >= ?", productID, -delta).
			Update("quantity", gorm.Expr("quantity + ?", delta))
		if result.Error != nil {
			return false, fmt.Errorf("failed to decrement inventory record: %w", result.Error)
		}
		return result.RowsAffected == 1, nil
	}

	result := t.tx.Model(&InventoryRecordModel{}).
		Where("product_id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment inventory record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		model := &InventoryRecordModel{ProductID: productID, Quantity: delta}
		if err := t.tx.Create(model).Error; err != nil {
			return false, fmt.Errorf("failed to create inventory record on release: %w", err)
		}
	}
	return true, nil
}
