package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
)

// SagaService 订单侧的 saga 推进。每个结果事件在一个加锁事务内处理：
// 读取订单（FOR UPDATE）→ 状态检查 → 行/单状态迁移 → 后续事件写入发件箱。
// 重投递靠状态检查吸收：已迁移过的行或已到终态的订单不再产生任何写入，
// 因此补偿释放对每个已预占行至多发出一次。
type SagaService struct {
	unit    domain.SagaUnit
	metrics *metrics.Metrics
}

// NewSagaService 创建 saga 服务
func NewSagaService(unit domain.SagaUnit, m *metrics.Metrics) *SagaService {
	return &SagaService{unit: unit, metrics: m}
}

// HandleStockReserved 处理单行预占成功。
// 订单仍 PENDING：标记该行 RESERVED，全部行就绪时确认订单。
// 订单已 CANCELLED：这是迟到的孤儿预占，补一条 release-stock 把库存要回来。
func (s *SagaService) HandleStockReserved(ctx context.Context, evt *domain.StockReservedEvent) error {
	var resolved domain.OrderStatus

	err := s.unit.InTx(ctx, func(tx domain.SagaTx) error {
		order, err := tx.GetOrderForUpdate(evt.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			// 本服务不认识这张订单却收到了它的预占：把库存要回来。
			// 没有订单行可做状态检查，改用事件 ID 入账去重——
			// 释放在库存侧不幂等，重投递不得产生第二条 release-stock。
			if evt.EventID != "" {
				first, err := tx.MarkEventConsumed(evt.EventID)
				if err != nil {
					return err
				}
				if !first {
					logger.Info(ctx, "Duplicate reservation for unknown order absorbed",
						"order_id", evt.OrderID, "event_id", evt.EventID)
					return nil
				}
			}
			logger.Error(ctx, "Reservation for unknown order, compensating",
				"order_id", evt.OrderID, "product_id", evt.ProductID)
			return tx.AppendEvent(evt.OrderID, domain.TopicReleaseStock, &domain.ReleaseStockEvent{
				OrderID:   evt.OrderID,
				ProductID: evt.ProductID,
				Quantity:  evt.Quantity,
			})
		}
		if err != nil {
			return err
		}

		item := order.Item(evt.ProductID)
		if item == nil {
			return fmt.Errorf("stock-reserved for unknown line: order=%s product=%s", evt.OrderID, evt.ProductID)
		}

		switch order.Status {
		case domain.StatusCancelled:
			// 只有行仍 PENDING 时才补偿；迁移行状态使重投递不会二次释放
			if item.Status != domain.ItemPending {
				return nil
			}
			if err := tx.SetItemStatus(evt.OrderID, evt.ProductID, domain.ItemReserved); err != nil {
				return err
			}
			logger.Warn(ctx, "Orphan reservation on cancelled order, compensating",
				"order_id", evt.OrderID, "product_id", evt.ProductID)
			return tx.AppendEvent(evt.OrderID, domain.TopicReleaseStock, &domain.ReleaseStockEvent{
				OrderID:   evt.OrderID,
				ProductID: evt.ProductID,
				Quantity:  evt.Quantity,
			})

		case domain.StatusConfirmed:
			return nil

		case domain.StatusPending:
			if item.Status == domain.ItemReserved {
				return nil
			}
			if err := tx.SetItemStatus(evt.OrderID, evt.ProductID, domain.ItemReserved); err != nil {
				return err
			}
			item.Status = domain.ItemReserved

			if !order.AllReserved() {
				return nil
			}
			if err := tx.SetOrderStatus(evt.OrderID, domain.StatusConfirmed); err != nil {
				return err
			}
			resolved = domain.StatusConfirmed
			return tx.AppendEvent(evt.OrderID, domain.TopicOrderConfirmed, &domain.OrderConfirmedEvent{
				OrderID:     evt.OrderID,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount.String(),
			})

		default:
			return fmt.Errorf("order %s in unexpected status %s", evt.OrderID, order.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to apply stock-reserved for order %s: %w", evt.OrderID, err)
	}

	if resolved != "" {
		s.countResolved(resolved)
		logger.Info(ctx, "Order confirmed", "order_id", evt.OrderID)
	}
	return nil
}

// HandleStockRejected 处理单行预占被拒。
// 订单仍 PENDING：标记该行 REJECTED、订单 CANCELLED，
// 并为每个已 RESERVED 的兄弟行各写一条 release-stock 补偿。
// 订单已 CANCELLED：只补记行状态，不再产生补偿（已在首次取消时发出）。
func (s *SagaService) HandleStockRejected(ctx context.Context, evt *domain.StockRejectedEvent) error {
	var resolved domain.OrderStatus

	err := s.unit.InTx(ctx, func(tx domain.SagaTx) error {
		order, err := tx.GetOrderForUpdate(evt.OrderID)
		if err != nil {
			return err
		}

		item := order.Item(evt.ProductID)
		if item == nil {
			return fmt.Errorf("stock-rejected for unknown line: order=%s product=%s", evt.OrderID, evt.ProductID)
		}

		switch order.Status {
		case domain.StatusCancelled:
			if item.Status == domain.ItemPending {
				return tx.SetItemStatus(evt.OrderID, evt.ProductID, domain.ItemRejected)
			}
			return nil

		case domain.StatusConfirmed:
			// 确认后不应再收到拒绝；记录下来供排查，不做状态回退
			logger.Error(ctx, "Stock-rejected on confirmed order",
				"order_id", evt.OrderID, "product_id", evt.ProductID)
			return nil

		case domain.StatusPending:
			if err := tx.SetItemStatus(evt.OrderID, evt.ProductID, domain.ItemRejected); err != nil {
				return err
			}
			if err := tx.SetOrderStatus(evt.OrderID, domain.StatusCancelled); err != nil {
				return err
			}
			resolved = domain.StatusCancelled

			for i := range order.Items {
				sibling := &order.Items[i]
				if sibling.ProductID == evt.ProductID || sibling.Status != domain.ItemReserved {
					continue
				}
				release := &domain.ReleaseStockEvent{
					OrderID:   evt.OrderID,
					ProductID: sibling.ProductID,
					Quantity:  sibling.Quantity,
				}
				if err := tx.AppendEvent(evt.OrderID, domain.TopicReleaseStock, release); err != nil {
					return err
				}
			}

			return tx.AppendEvent(evt.OrderID, domain.TopicOrderCancelled, &domain.OrderCancelledEvent{
				OrderID: evt.OrderID,
				UserID:  order.UserID,
				Reason:  evt.Reason,
			})

		default:
			return fmt.Errorf("order %s in unexpected status %s", evt.OrderID, order.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to apply stock-rejected for order %s: %w", evt.OrderID, err)
	}

	if resolved != "" {
		s.countResolved(resolved)
		logger.Info(ctx, "Order cancelled", "order_id", evt.OrderID, "reason", evt.Reason)
	}
	return nil
}

func (s *SagaService) countResolved(status domain.OrderStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.OrdersResolvedTotal.WithLabelValues(string(status)).Inc()
}
