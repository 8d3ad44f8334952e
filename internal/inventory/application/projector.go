package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
)

// Projector 把已发布的预占/释放事件投影到持久库存。
// 台账以发件箱事件 ID 为主键，台账写入与库存调整在同一事务内，
// 因此同一事件重放时要么整体已生效（命中台账，跳过），要么整体重做。
type Projector struct {
	unit    domain.ProjectionUnit
	metrics *metrics.Metrics
}

// NewProjector 创建投影器
func NewProjector(unit domain.ProjectionUnit, m *metrics.Metrics) *Projector {
	return &Projector{unit: unit, metrics: m}
}

// Project 投影单个事件。kind 为 RESERVED 时扣减持久库存，RELEASED 时回加。
func (p *Projector) Project(ctx context.Context, outboxID uint64, productID string, quantity int64, kind domain.LedgerEntryType) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid projection quantity: %d", quantity)
	}

	duplicate := false
	err := p.unit.InTx(ctx, func(tx domain.ProjectionTx) error {
		exists, err := tx.LedgerExists(outboxID)
		if err != nil {
			return err
		}
		if exists {
			duplicate = true
			logger.Debug(ctx, "Projection already applied",
				"outbox_id", outboxID, "product_id", productID)
			return nil
		}

		delta := quantity
		if kind == domain.LedgerReserved {
			delta = -quantity
		}

		applied, err := tx.AdjustStock(productID, delta)
		if err != nil {
			return err
		}
		if !applied {
			// 扣减守卫未命中说明持久库存与快速路径已漂移，
			// 让该行落 FAILED 暴露给操作者，而不是把库存写成负数。
			return fmt.Errorf("persistent stock guard rejected adjustment: product=%s delta=%d", productID, delta)
		}

		return tx.InsertLedger(&domain.LedgerEntry{
			OutboxID:  outboxID,
			EventType: kind,
			ProductID: productID,
			Quantity:  quantity,
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("projection failed for outbox event %d: %w", outboxID, err)
	}

	if p.metrics != nil {
		if duplicate {
			p.metrics.ProjectionsDuplicateTotal.Inc()
		} else {
			p.metrics.ProjectionsAppliedTotal.Inc()
		}
	}
	return nil
}
