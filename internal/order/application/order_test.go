package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/utils"
)

// memOrderRepo 内存版订单仓储
type memOrderRepo struct {
	created *domain.Order
	events  []domain.PendingEvent
}

func (r *memOrderRepo) Create(ctx context.Context, order *domain.Order, events ...domain.PendingEvent) error {
	r.created = order
	r.events = append(r.events, events...)
	return nil
}

func (r *memOrderRepo) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if r.created != nil && r.created.ID == orderID {
		return r.created, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *memOrderRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int64, error) {
	return nil, 0, nil
}

func TestCreateOrderWritesPendingOrderWithCreatedEvent(t *testing.T) {
	repo := &memOrderRepo{}
	svc := NewOrderService(repo, utils.NewSnowflakeID(1))

	orderID, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Items: []CreateOrderItem{
			{ProductID: "p1", Size: "M", Quantity: 2, UnitPrice: "19.90"},
			{ProductID: "p2", Quantity: 1, UnitPrice: "5.10"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)

	require.NotNil(t, repo.created)
	assert.Equal(t, domain.StatusPending, repo.created.Status)
	assert.Equal(t, "44.90", repo.created.TotalAmount.String())
	for _, item := range repo.created.Items {
		assert.Equal(t, domain.ItemPending, item.Status)
	}

	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.TopicOrderCreated, repo.events[0].EventType)
	created := repo.events[0].Payload.(*domain.OrderCreatedEvent)
	assert.Equal(t, orderID, created.OrderID)
	assert.Len(t, created.Items, 2)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	svc := NewOrderService(&memOrderRepo{}, utils.NewSnowflakeID(1))
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderCommand{UserID: "user-1"})
	assert.Error(t, err)

	_, err = svc.CreateOrder(ctx, CreateOrderCommand{
		UserID: "user-1",
		Items:  []CreateOrderItem{{ProductID: "p1", Quantity: 0, UnitPrice: "1.00"}},
	})
	assert.Error(t, err)

	_, err = svc.CreateOrder(ctx, CreateOrderCommand{
		UserID: "user-1",
		Items:  []CreateOrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: "not-a-number"}},
	})
	assert.Error(t, err)

	// 同一商品重复出现
	_, err = svc.CreateOrder(ctx, CreateOrderCommand{
		UserID: "user-1",
		Items: []CreateOrderItem{
			{ProductID: "p1", Quantity: 1, UnitPrice: "1.00"},
			{ProductID: "p1", Quantity: 2, UnitPrice: "1.00"},
		},
	})
	assert.Error(t, err)
}
