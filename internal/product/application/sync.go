// Package application 实现商品目录数量的同步投影。
package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/orderfulfillment/internal/product/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// SyncService 消费库存事件，把数量增减应用到商品目录。
// 每个事件按 event_id 做持久去重，重投递与消费组重平衡都不会重复应用。
type SyncService struct {
	unit domain.SyncUnit
	repo domain.ProductRepository
}

// NewSyncService 创建同步服务
func NewSyncService(unit domain.SyncUnit, repo domain.ProductRepository) *SyncService {
	return &SyncService{unit: unit, repo: repo}
}

// HandleStockDecreased 应用一次数量扣减
func (s *SyncService) HandleStockDecreased(ctx context.Context, evt *domain.ProductStockDecreasedEvent) error {
	return s.apply(ctx, evt.EventID, evt.ProductID, -evt.Quantity)
}

// HandleStockReleased 应用一次数量回加
func (s *SyncService) HandleStockReleased(ctx context.Context, evt *domain.StockReleasedEvent) error {
	return s.apply(ctx, evt.EventID, evt.ProductID, evt.Quantity)
}

// GetProduct 读取商品目录视图
func (s *SyncService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.repo.Get(ctx, productID)
}

func (s *SyncService) apply(ctx context.Context, eventID, productID string, delta int64) error {
	if eventID == "" || productID == "" {
		return fmt.Errorf("invalid product sync event: event_id=%q product_id=%q", eventID, productID)
	}

	err := s.unit.InTx(ctx, func(tx domain.SyncTx) error {
		applied, err := tx.Applied(eventID)
		if err != nil {
			return err
		}
		if applied {
			logger.Debug(ctx, "Product sync already applied", "event_id", eventID, "product_id", productID)
			return nil
		}
		if err := tx.AdjustQuantity(productID, delta); err != nil {
			return err
		}
		return tx.MarkApplied(eventID, productID, delta)
	})
	if err != nil {
		return fmt.Errorf("product sync failed for event %s: %w", eventID, err)
	}
	return nil
}
