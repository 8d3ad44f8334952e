// Package mysql 提供订单聚合与 saga 事务边界的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

// OrderModel 订单数据库模型
type OrderModel struct {
	ID          string          `gorm:"column:id;type:varchar(32);primaryKey"`
	UserID      string          `gorm:"column:user_id;type:varchar(64);index;not null"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(18,2);not null"`
	Status      string          `gorm:"column:status;type:varchar(16);index;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;index"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

// TableName 指定表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 订单行数据库模型
type OrderItemModel struct {
	OrderID   string          `gorm:"column:order_id;type:varchar(32);primaryKey"`
	ProductID string          `gorm:"column:product_id;type:varchar(64);primaryKey"`
	Size      string          `gorm:"column:size;type:varchar(16)"`
	Quantity  int64           `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(18,2);not null"`
	Status    string          `gorm:"column:status;type:varchar(16);not null"`
}

// TableName 指定表名
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ConsumedEventModel 消费入账。event_id 为主键、只插入，
// 供无订单行可做状态检查的 saga 路径按事件去重。
type ConsumedEventModel struct {
	EventID   string    `gorm:"column:event_id;type:varchar(64);primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName 指定表名
func (ConsumedEventModel) TableName() string {
	return "saga_consumed_events"
}

func toOrderModel(order *domain.Order) *OrderModel {
	return &OrderModel{
		ID:          order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

func toDomainOrder(model *OrderModel, items []OrderItemModel) *domain.Order {
	order := &domain.Order{
		ID:          model.ID,
		UserID:      model.UserID,
		TotalAmount: model.TotalAmount,
		Status:      domain.OrderStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		Items:       make([]domain.OrderItem, 0, len(items)),
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Status:    domain.ItemStatus(item.Status),
		})
	}
	return order
}

// orderRepositoryImpl domain.OrderRepository 的 GORM 实现
type orderRepositoryImpl struct {
	db *db.DB
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(database *db.DB) domain.OrderRepository {
	return &orderRepositoryImpl{db: database}
}

// Create 实现 domain.OrderRepository.Create
func (r *orderRepositoryImpl) Create(ctx context.Context, order *domain.Order, events ...domain.PendingEvent) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(toOrderModel(order)).Error; err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		items := make([]OrderItemModel, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, OrderItemModel{
				OrderID:   item.OrderID,
				ProductID: item.ProductID,
				Size:      item.Size,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Status:    string(item.Status),
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to insert order items: %w", err)
		}

		for _, evt := range events {
			if err := outbox.PublishInTx(tx, "order", order.ID, evt.EventType, evt.Payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get 实现 domain.OrderRepository.Get
func (r *orderRepositoryImpl) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	var items []OrderItemModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return toDomainOrder(&model, items), nil
}

// ListByUser 实现 domain.OrderRepository.ListByUser
func (r *orderRepositoryImpl) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var models []OrderModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	if len(models) == 0 {
		return nil, total, nil
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}

	var items []OrderItemModel
	if err := r.db.WithContext(ctx).Where("order_id IN ?", ids).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list order items: %w", err)
	}

	grouped := make(map[string][]OrderItemModel, len(models))
	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}

	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toDomainOrder(&models[i], grouped[models[i].ID]))
	}
	return orders, total, nil
}

// sagaUnitImpl domain.SagaUnit 的 GORM 实现
type sagaUnitImpl struct {
	db *db.DB
}

// NewSagaUnit 创建 saga 事务边界实例
func NewSagaUnit(database *db.DB) domain.SagaUnit {
	return &sagaUnitImpl{db: database}
}

// InTx 实现 domain.SagaUnit.InTx
func (u *sagaUnitImpl) InTx(ctx context.Context, fn func(tx domain.SagaTx) error) error {
	return u.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&sagaTxImpl{tx: tx})
	})
}

// sagaTxImpl saga 事务内操作的 GORM 实现
type sagaTxImpl struct {
	tx *gorm.DB
}

// GetOrderForUpdate 实现 domain.SagaTx.GetOrderForUpdate
func (t *sagaTxImpl) GetOrderForUpdate(orderID string) (*domain.Order, error) {
	var model OrderModel
	err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	var items []OrderItemModel
	if err := t.tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return toDomainOrder(&model, items), nil
}

// SetItemStatus 实现 domain.SagaTx.SetItemStatus
func (t *sagaTxImpl) SetItemStatus(orderID, productID string, status domain.ItemStatus) error {
	result := t.tx.Model(&OrderItemModel{}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update item status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Warn(context.Background(), "Item status update matched no rows",
			"order_id", orderID, "product_id", productID, "status", status)
	}
	return nil
}

// SetOrderStatus 实现 domain.SagaTx.SetOrderStatus
func (t *sagaTxImpl) SetOrderStatus(orderID string, status domain.OrderStatus) error {
	err := t.tx.Model(&OrderModel{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// AppendEvent 实现 domain.SagaTx.AppendEvent
func (t *sagaTxImpl) AppendEvent(aggregateID, eventType string, payload interface{}) error {
	return outbox.PublishInTx(t.tx, "order", aggregateID, eventType, payload)
}

// MarkEventConsumed 实现 domain.SagaTx.MarkEventConsumed
func (t *sagaTxImpl) MarkEventConsumed(eventID string) (bool, error) {
	if err := t.tx.Create(&ConsumedEventModel{EventID: eventID}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record consumed event: %w", err)
	}
	return true, nil
}
