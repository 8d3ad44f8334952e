// Package application 实现库存服务的应用层：预占编排、补偿释放与持久库存投影。
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
)

// 发件箱聚合类型
const (
	aggregateOrder   = "order"
	aggregateProduct = "product"
)

// ReservationService 预占编排服务：消费 order-created 与 release-stock，
// 调用原子库存存取，并把结果事件经发件箱发布。
type ReservationService struct {
	store    domain.StockStore
	writer   domain.EventWriter
	metrics  *metrics.Metrics
	dedupTTL time.Duration
}

// NewReservationService 创建预占编排服务
func NewReservationService(store domain.StockStore, writer domain.EventWriter, m *metrics.Metrics, dedupTTL time.Duration) *ReservationService {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &ReservationService{
		store:    store,
		writer:   writer,
		metrics:  m,
		dedupTTL: dedupTTL,
	}
}

// HandleOrderCreated 逐行尝试原子预占，为每行产出一个结果事件。
// 行与行相互独立：一行不足不会回滚其他行，补偿由订单侧 saga 决定。
// DUPLICATE 需要甄别来源：结果事件已落库的普通重投递直接吸收；
// 预占成功但发件箱写入失败后的重放必须补发结果事件，否则快速路径的扣减
// 永远不会体现为 stock-reserved，订单会卡死在 PENDING。补发对下游是安全的：
// 订单侧的行状态检查会吸收真正的重复预占事件。
func (s *ReservationService) HandleOrderCreated(ctx context.Context, evt *domain.OrderCreatedEvent) error {
	if evt.OrderID == "" || len(evt.Items) == 0 {
		return fmt.Errorf("invalid order-created event: order_id=%q items=%d", evt.OrderID, len(evt.Items))
	}

	pending := make([]domain.PendingEvent, 0, len(evt.Items)*2)
	recorded, recordedChecked := false, false

	for _, line := range evt.Items {
		outcome, err := s.store.Reserve(ctx, line.ProductID, evt.OrderID, line.Quantity, s.dedupTTL)
		if err != nil {
			// 存取失败时不产出任何事件，让消息重试把整个订单重放一遍；
			// 已成功的行会命中去重标记，不会二次扣减。
			return fmt.Errorf("reserve failed for order %s product %s: %w", evt.OrderID, line.ProductID, err)
		}

		s.countReservation(outcome)

		switch outcome {
		case domain.OutcomeReserved:
			pending = append(pending, reservedEvents(evt.OrderID, line)...)
		case domain.OutcomeInsufficient:
			pending = append(pending, domain.PendingEvent{
				EventType: domain.TopicStockRejected,
				Payload: &domain.StockRejectedEvent{
					OrderID:   evt.OrderID,
					ProductID: line.ProductID,
					Size:      line.Size,
					Quantity:  line.Quantity,
					Reason:    "insufficient stock",
				},
			})
		case domain.OutcomeDuplicate:
			// 同一条消息的所有结果事件在一个事务内落库，所以发件箱里
			// 只要有这张订单的任何结果行，本次 DUPLICATE 就是普通重投递。
			if !recordedChecked {
				recorded, err = s.writer.OutcomesRecorded(ctx, evt.OrderID)
				if err != nil {
					return fmt.Errorf("failed to check outcomes for order %s: %w", evt.OrderID, err)
				}
				recordedChecked = true
			}
			if recorded {
				logger.Info(ctx, "Duplicate reservation absorbed",
					"order_id", evt.OrderID, "product_id", line.ProductID)
				continue
			}
			logger.Warn(ctx, "Re-emitting reservation outcome after lost outbox write",
				"order_id", evt.OrderID, "product_id", line.ProductID)
			pending = append(pending, reservedEvents(evt.OrderID, line)...)
		}
	}

	if len(pending) == 0 {
		return nil
	}

	if err := s.writer.WriteInTx(ctx, aggregateOrder, evt.OrderID, pending...); err != nil {
		return fmt.Errorf("failed to record reservation events for order %s: %w", evt.OrderID, err)
	}

	logger.Info(ctx, "Order reservation processed",
		"order_id", evt.OrderID, "lines", len(evt.Items), "events", len(pending))
	return nil
}

// HandleReleaseStock 执行一次补偿释放并经发件箱确认。
// Release 本身不幂等，至多一次投递由订单侧的单次状态迁移保证。
func (s *ReservationService) HandleReleaseStock(ctx context.Context, evt *domain.ReleaseStockEvent) error {
	if evt.OrderID == "" || evt.ProductID == "" {
		return fmt.Errorf("invalid release-stock event: order_id=%q product_id=%q", evt.OrderID, evt.ProductID)
	}

	if err := s.store.Release(ctx, evt.ProductID, evt.OrderID, evt.Quantity); err != nil {
		return fmt.Errorf("release failed for order %s product %s: %w", evt.OrderID, evt.ProductID, err)
	}

	if s.metrics != nil {
		s.metrics.ReleasesTotal.Inc()
	}

	released := domain.PendingEvent{
		EventType: domain.TopicStockReleased,
		Payload: &domain.StockReleasedEvent{
			OrderID:   evt.OrderID,
			ProductID: evt.ProductID,
			Quantity:  evt.Quantity,
		},
	}
	if err := s.writer.WriteInTx(ctx, aggregateOrder, evt.OrderID, released); err != nil {
		return fmt.Errorf("failed to record stock-released for order %s: %w", evt.OrderID, err)
	}

	logger.Info(ctx, "Stock released",
		"order_id", evt.OrderID, "product_id", evt.ProductID, "quantity", evt.Quantity)
	return nil
}

// reservedEvents 单行预占成功对应的两个结果事件
func reservedEvents(orderID string, line domain.OrderLine) []domain.PendingEvent {
	return []domain.PendingEvent{
		{
			EventType: domain.TopicStockReserved,
			Payload: &domain.StockReservedEvent{
				OrderID:   orderID,
				ProductID: line.ProductID,
				Size:      line.Size,
				Quantity:  line.Quantity,
			},
		},
		{
			EventType: domain.TopicProductStockDecreased,
			Payload: &domain.ProductStockDecreasedEvent{
				OrderID:   orderID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			},
		},
	}
}

func (s *ReservationService) countReservation(outcome domain.ReservationOutcome) {
	if s.metrics == nil {
		return
	}
	s.metrics.ReservationsTotal.WithLabelValues(string(outcome)).Inc()
}
