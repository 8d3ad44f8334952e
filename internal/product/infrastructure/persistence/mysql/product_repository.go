// Package mysql 提供商品目录同步投影的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/orderfulfillment/internal/product/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
)

// ProductModel 商品目录数据库模型
type ProductModel struct {
	ProductID string    `gorm:"column:product_id;type:varchar(64);primaryKey"`
	Quantity  int64     `gorm:"column:quantity;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (ProductModel) TableName() string {
	return "products"
}

// ProductSyncLedgerModel 同步台账数据库模型，event_id 为主键
type ProductSyncLedgerModel struct {
	EventID   string    `gorm:"column:event_id;type:varchar(64);primaryKey"`
	ProductID string    `gorm:"column:product_id;type:varchar(64);index;not null"`
	Delta     int64     `gorm:"column:delta;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName 指定表名
func (ProductSyncLedgerModel) TableName() string {
	return "product_sync_ledger"
}

// productRepositoryImpl domain.ProductRepository 的 GORM 实现
type productRepositoryImpl struct {
	db *db.DB
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(database *db.DB) domain.ProductRepository {
	return &productRepositoryImpl{db: database}
}

// Get 实现 domain.ProductRepository.Get
func (r *productRepositoryImpl) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var model ProductModel
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &domain.Product{
		ProductID: model.ProductID,
		Quantity:  model.Quantity,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// syncUnitImpl domain.SyncUnit 的 GORM 实现
type syncUnitImpl struct {
	db *db.DB
}

// NewSyncUnit 创建同步事务边界实例
func NewSyncUnit(database *db.DB) domain.SyncUnit {
	return &syncUnitImpl{db: database}
}

// InTx 实现 domain.SyncUnit.InTx
func (u *syncUnitImpl) InTx(ctx context.Context, fn func(tx domain.SyncTx) error) error {
	return u.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&syncTxImpl{tx: tx})
	})
}

// syncTxImpl 同步事务内操作的 GORM 实现
type syncTxImpl struct {
	tx *gorm.DB
}

// Applied 实现 domain.SyncTx.Applied
func (t *syncTxImpl) Applied(eventID string) (bool, error) {
	var count int64
	err := t.tx.Model(&ProductSyncLedgerModel{}).Where("event_id = ?", eventID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check product sync ledger: %w", err)
	}
	return count > 0, nil
}

// MarkApplied 实现 domain.SyncTx.MarkApplied
func (t *syncTxImpl) MarkApplied(eventID, productID string, delta int64) error {
	model := &ProductSyncLedgerModel{
		EventID:   eventID,
		ProductID: productID,
		Delta:     delta,
		CreatedAt: time.Now(),
	}
	if err := t.tx.Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert product sync ledger entry: %w", err)
	}
	return nil
}

// AdjustQuantity 实现 domain.SyncTx.AdjustQuantity
func (t *syncTxImpl) AdjustQuantity(productID string, delta int64) error {
	result := t.tx.Model(&ProductModel{}).
		Where("product_id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to adjust product quantity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		model := &ProductModel{ProductID: productID, Quantity: delta}
		if err := t.tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create product on sync: %w", err)
		}
	}
	return nil
}
