// Package application 实现订单服务的应用层：下单、查询与 saga 推进。
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/utils"
)

const aggregateOrder = "order"

// CreateOrderItem 下单命令中的单行
type CreateOrderItem struct {
	ProductID string
	Size      string
	Quantity  int64
	UnitPrice string
}

// CreateOrderCommand 下单命令
type CreateOrderCommand struct {
	UserID string
	Items  []CreateOrderItem
}

// OrderService 订单下单与查询
type OrderService struct {
	repo  domain.OrderRepository
	idGen *utils.SnowflakeID
}

// NewOrderService 创建订单服务
func NewOrderService(repo domain.OrderRepository, idGen *utils.SnowflakeID) *OrderService {
	return &OrderService{repo: repo, idGen: idGen}
}

// CreateOrder 创建 PENDING 订单并在同一事务内写入 order-created 发件箱事件。
// 预占结果异步到达，下单立即返回订单号。
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (string, error) {
	if cmd.UserID == "" || len(cmd.Items) == 0 {
		return "", fmt.Errorf("invalid order: user_id=%q items=%d", cmd.UserID, len(cmd.Items))
	}

	orderID := fmt.Sprintf("ORD%d", s.idGen.Generate())
	now := time.Now()

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	lines := make([]domain.OrderLine, 0, len(cmd.Items))
	total := decimal.Zero

	seen := make(map[string]struct{}, len(cmd.Items))
	for _, in := range cmd.Items {
		if in.ProductID == "" || in.Quantity <= 0 {
			return "", fmt.Errorf("invalid order line: product_id=%q quantity=%d", in.ProductID, in.Quantity)
		}
		// 同一商品重复出现会破坏行级去重与状态迁移，直接拒绝
		if _, dup := seen[in.ProductID]; dup {
			return "", fmt.Errorf("duplicate product in order: %s", in.ProductID)
		}
		seen[in.ProductID] = struct{}{}

		price, err := decimal.NewFromString(in.UnitPrice)
		if err != nil || price.IsNegative() {
			return "", fmt.Errorf("invalid unit price for product %s: %q", in.ProductID, in.UnitPrice)
		}

		item := domain.OrderItem{
			OrderID:   orderID,
			ProductID: in.ProductID,
			Size:      in.Size,
			Quantity:  in.Quantity,
			UnitPrice: price,
			Status:    domain.ItemPending,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
		lines = append(lines, domain.OrderLine{
			ProductID: in.ProductID,
			Size:      in.Size,
			Quantity:  in.Quantity,
		})
	}

	order := &domain.Order{
		ID:          orderID,
		UserID:      cmd.UserID,
		TotalAmount: total,
		Status:      domain.StatusPending,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created := domain.PendingEvent{
		EventType: domain.TopicOrderCreated,
		Payload: &domain.OrderCreatedEvent{
			OrderID: orderID,
			UserID:  cmd.UserID,
			Items:   lines,
		},
	}
	if err := s.repo.Create(ctx, order, created); err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	logger.Info(ctx, "Order created",
		"order_id", orderID, "user_id", cmd.UserID, "lines", len(items), "total", total.String())
	return orderID, nil
}

// GetOrder 读取订单详情
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

// ListOrders 按用户分页列出订单
func (s *OrderService) ListOrders(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
