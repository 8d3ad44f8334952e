package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/payment/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/utils"
)

// memPaymentRepo 内存版支付仓储
type memPaymentRepo struct {
	payments map[string]*domain.Payment
	events   []domain.PendingEvent
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*domain.Payment)}
}

func (r *memPaymentRepo) Insert(ctx context.Context, payment *domain.Payment) error {
	for _, p := range r.payments {
		if p.OrderID == payment.OrderID || p.IdempotencyKey == payment.IdempotencyKey {
			return domain.ErrDuplicateKey
		}
	}
	copied := *payment
	r.payments[payment.ID] = &copied
	return nil
}

func (r *memPaymentRepo) FindByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if p, ok := r.payments[paymentID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *memPaymentRepo) FindByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	for _, p := range r.payments {
		if p.OrderID == orderID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *memPaymentRepo) FindByKey(ctx context.Context, idempotencyKey string) (*domain.Payment, error) {
	for _, p := range r.payments {
		if p.IdempotencyKey == idempotencyKey {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *memPaymentRepo) Transition(ctx context.Context, paymentID string, from, to domain.PaymentStatus, reason string, event domain.PendingEvent) (bool, error) {
	p, ok := r.payments[paymentID]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.Reason = reason
	r.events = append(r.events, event)
	return true, nil
}

func TestCreateOrGetPendingByOrderIsIdempotent(t *testing.T) {
	repo := newMemPaymentRepo()
	svc := NewPaymentService(repo, utils.NewSnowflakeID(1))
	ctx := context.Background()
	amount := decimal.RequireFromString("44.90")

	first, err := svc.CreateOrGetPendingByOrder(ctx, "O1", "user-1", amount, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, first.Status)

	// 同一幂等键重放返回同一张单
	again, err := svc.CreateOrGetPendingByOrder(ctx, "O1", "user-1", amount, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// 同一订单换了幂等键也不会开第二张单
	other, err := svc.CreateOrGetPendingByOrder(ctx, "O1", "user-1", amount, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, other.ID)

	assert.Len(t, repo.payments, 1)
}

func TestCreateOrGetPendingByOrderResolvesInsertRace(t *testing.T) {
	repo := newMemPaymentRepo()
	svc := NewPaymentService(repo, utils.NewSnowflakeID(1))
	ctx := context.Background()

	// 预置并发方已插入的单：本方的 Insert 会撞唯一键
	existing := &domain.Payment{
		ID:             "PAY-race",
		OrderID:        "O2",
		UserID:         "user-1",
		Amount:         decimal.NewFromInt(10),
		IdempotencyKey: "race-key",
		Status:         domain.StatusPending,
	}
	repo.payments[existing.ID] = existing

	payment, err := svc.CreateOrGetPendingByOrder(ctx, "O2", "user-1", decimal.NewFromInt(10), "race-key")
	require.NoError(t, err)
	assert.Equal(t, "PAY-race", payment.ID)
	assert.Len(t, repo.payments, 1)
}

func TestMarkSucceededWritesExactlyOneEvent(t *testing.T) {
	repo := newMemPaymentRepo()
	svc := NewPaymentService(repo, utils.NewSnowflakeID(1))
	ctx := context.Background()

	payment, err := svc.CreateOrGetPendingByOrder(ctx, "O3", "user-1", decimal.NewFromInt(50), "evt-3")
	require.NoError(t, err)

	require.NoError(t, svc.MarkSucceeded(ctx, payment.ID))
	require.NoError(t, svc.MarkSucceeded(ctx, payment.ID))
	require.NoError(t, svc.MarkSucceeded(ctx, payment.ID))

	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.TopicPaymentSucceeded, repo.events[0].EventType)
	succeeded := repo.events[0].Payload.(*domain.PaymentSucceededEvent)
	assert.Equal(t, payment.ID, succeeded.PaymentID)
	assert.Equal(t, "50", succeeded.Amount)

	stored, err := svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
}

func TestMarkFailedIsNoOpOnTerminalPayment(t *testing.T) {
	repo := newMemPaymentRepo()
	svc := NewPaymentService(repo, utils.NewSnowflakeID(1))
	ctx := context.Background()

	payment, err := svc.CreateOrGetPendingByOrder(ctx, "O4", "user-1", decimal.NewFromInt(20), "evt-4")
	require.NoError(t, err)
	require.NoError(t, svc.MarkSucceeded(ctx, payment.ID))

	// 成功后再收到失败回调：不迁移、不发事件
	require.NoError(t, svc.MarkFailed(ctx, payment.ID, "gateway timeout"))

	stored, err := svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
	assert.Len(t, repo.events, 1)
}

func TestMarkSucceededUnknownPayment(t *testing.T) {
	svc := NewPaymentService(newMemPaymentRepo(), utils.NewSnowflakeID(1))
	err := svc.MarkSucceeded(context.Background(), "PAY-missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
