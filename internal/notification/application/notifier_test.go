package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/notification/domain"
)

// memNotificationRepo 内存版通知仓储
type memNotificationRepo struct {
	byEventID map[string]*domain.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{byEventID: make(map[string]*domain.Notification)}
}

func (r *memNotificationRepo) Record(ctx context.Context, n *domain.Notification) (bool, error) {
	if _, ok := r.byEventID[n.EventID]; ok {
		return false, nil
	}
	r.byEventID[n.EventID] = n
	return true, nil
}

func (r *memNotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range r.byEventID {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestNotifierRecordsEachEventOnce(t *testing.T) {
	repo := newMemNotificationRepo()
	svc := NewNotifierService(repo)
	ctx := context.Background()

	evt := &domain.OrderConfirmedEvent{EventID: "42", OrderID: "O1", UserID: "user-1", TotalAmount: "44.90"}
	require.NoError(t, svc.NotifyOrderConfirmed(ctx, evt))
	require.NoError(t, svc.NotifyOrderConfirmed(ctx, evt))

	assert.Len(t, repo.byEventID, 1)
	recorded := repo.byEventID["42"]
	assert.Equal(t, domain.TopicOrderConfirmed, recorded.Kind)
	assert.Contains(t, recorded.Message, "O1")
}

func TestNotifierRejectsEventWithoutID(t *testing.T) {
	svc := NewNotifierService(newMemNotificationRepo())
	err := svc.NotifyOrderCancelled(context.Background(), &domain.OrderCancelledEvent{OrderID: "O1", UserID: "user-1"})
	assert.Error(t, err)
}

func TestNotifierCoversAllEventKinds(t *testing.T) {
	repo := newMemNotificationRepo()
	svc := NewNotifierService(repo)
	ctx := context.Background()

	require.NoError(t, svc.NotifyOrderCancelled(ctx, &domain.OrderCancelledEvent{EventID: "1", OrderID: "O1", UserID: "u", Reason: "insufficient stock"}))
	require.NoError(t, svc.NotifyPaymentSucceeded(ctx, &domain.PaymentSucceededEvent{EventID: "2", PaymentID: "P1", OrderID: "O1", UserID: "u", Amount: "10"}))
	require.NoError(t, svc.NotifyPaymentFailed(ctx, &domain.PaymentFailedEvent{EventID: "3", PaymentID: "P1", OrderID: "O1", UserID: "u", Reason: "gateway timeout"}))

	notifications, err := svc.ListByUser(ctx, "u", 10)
	require.NoError(t, err)
	assert.Len(t, notifications, 3)
}
