package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// InventoryService 库存供给与查询。写入同时落到快速路径与持久记录，
// 供给是运营操作，不经过发件箱。
type InventoryService struct {
	store domain.StockStore
	repo  domain.InventoryRepository
}

// NewInventoryService 创建库存供给服务
func NewInventoryService(store domain.StockStore, repo domain.InventoryRepository) *InventoryService {
	return &InventoryService{store: store, repo: repo}
}

// StockView 某商品的库存视图
type StockView struct {
	ProductID  string `json:"product_id"`
	Available  int64  `json:"available"`
	Persistent int64  `json:"persistent"`
}

// SetStock 设置商品库存。先落持久记录，再覆盖快速路径，
// 两步之间失败时以持久记录为准、由下次供给修复。
func (s *InventoryService) SetStock(ctx context.Context, productID string, quantity int64) error {
	if productID == "" || quantity < 0 {
		return fmt.Errorf("invalid stock supply: product_id=%q quantity=%d", productID, quantity)
	}

	record := &domain.InventoryRecord{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return err
	}
	if err := s.store.SetStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("failed to set fast-path stock for product %s: %w", productID, err)
	}

	logger.Info(ctx, "Stock supplied", "product_id", productID, "quantity", quantity)
	return nil
}

// GetStock 读取商品库存的双视图：快速路径可售量与持久记录量
func (s *InventoryService) GetStock(ctx context.Context, productID string) (*StockView, error) {
	available, err := s.store.GetStock(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to read fast-path stock for product %s: %w", productID, err)
	}

	var persistent int64
	record, err := s.repo.Get(ctx, productID)
	switch {
	case err == nil:
		persistent = record.Quantity
	case errors.Is(err, domain.ErrRecordNotFound):
		if available == 0 {
			return nil, domain.ErrRecordNotFound
		}
	default:
		return nil, err
	}

	return &StockView{
		ProductID:  productID,
		Available:  available,
		Persistent: persistent,
	}, nil
}
