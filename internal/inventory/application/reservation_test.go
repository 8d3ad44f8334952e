package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
)

// fakeStockStore 按商品预设结果的库存存取
type fakeStockStore struct {
	outcomes map[string]domain.ReservationOutcome
	failures map[string]error
	reserved []string
	released []string
}

func (s *fakeStockStore) Reserve(ctx context.Context, productID, orderID string, quantity int64, dedupTTL time.Duration) (domain.ReservationOutcome, error) {
	if err, ok := s.failures[productID]; ok {
		return "", err
	}
	s.reserved = append(s.reserved, productID)
	return s.outcomes[productID], nil
}

func (s *fakeStockStore) Release(ctx context.Context, productID, orderID string, quantity int64) error {
	if err, ok := s.failures[productID]; ok {
		return err
	}
	s.released = append(s.released, productID)
	return nil
}

func (s *fakeStockStore) SetStock(ctx context.Context, productID string, quantity int64) error {
	return nil
}

func (s *fakeStockStore) GetStock(ctx context.Context, productID string) (int64, error) {
	return 0, nil
}

// fakeEventWriter 记录写入发件箱的事件
type fakeEventWriter struct {
	calls    int
	events   []domain.PendingEvent
	writeErr error
	recorded bool
}

func (w *fakeEventWriter) WriteInTx(ctx context.Context, aggregateType, aggregateID string, events ...domain.PendingEvent) error {
	w.calls++
	if w.writeErr != nil {
		return w.writeErr
	}
	w.events = append(w.events, events...)
	return nil
}

func (w *fakeEventWriter) OutcomesRecorded(ctx context.Context, orderID string) (bool, error) {
	return w.recorded || len(w.events) > 0, nil
}

func (w *fakeEventWriter) eventTypes() []string {
	types := make([]string, 0, len(w.events))
	for _, e := range w.events {
		types = append(types, e.EventType)
	}
	return types
}

func TestHandleOrderCreatedEmitsPerLineOutcomes(t *testing.T) {
	store := &fakeStockStore{outcomes: map[string]domain.ReservationOutcome{
		"p1": domain.OutcomeReserved,
		"p2": domain.OutcomeInsufficient,
	}}
	writer := &fakeEventWriter{}
	svc := NewReservationService(store, writer, nil, time.Minute)

	err := svc.HandleOrderCreated(context.Background(), &domain.OrderCreatedEvent{
		OrderID: "O1",
		UserID:  "user-1",
		Items: []domain.OrderLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 5},
		},
	})
	require.NoError(t, err)

	// 成功行产出 stock-reserved + product-stock-decreased，失败行产出 stock-rejected
	assert.Equal(t, []string{
		domain.TopicStockReserved,
		domain.TopicProductStockDecreased,
		domain.TopicStockRejected,
	}, writer.eventTypes())
	// 整个订单的事件在一次事务内写入
	assert.Equal(t, 1, writer.calls)

	rejected := writer.events[2].Payload.(*domain.StockRejectedEvent)
	assert.Equal(t, "p2", rejected.ProductID)
	assert.Equal(t, "insufficient stock", rejected.Reason)
}

func TestHandleOrderCreatedAbsorbsDuplicateWithRecordedOutcome(t *testing.T) {
	store := &fakeStockStore{outcomes: map[string]domain.ReservationOutcome{
		"p1": domain.OutcomeDuplicate,
	}}
	writer := &fakeEventWriter{recorded: true}
	svc := NewReservationService(store, writer, nil, time.Minute)

	// 结果事件已在发件箱里：这是普通重投递，不补发任何事件
	err := svc.HandleOrderCreated(context.Background(), &domain.OrderCreatedEvent{
		OrderID: "O1",
		Items:   []domain.OrderLine{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Zero(t, writer.calls)
}

func TestHandleOrderCreatedReemitsOutcomeAfterLostOutboxWrite(t *testing.T) {
	store := &fakeStockStore{outcomes: map[string]domain.ReservationOutcome{
		"p1": domain.OutcomeReserved,
	}}
	writer := &fakeEventWriter{writeErr: errors.New("mysql down")}
	svc := NewReservationService(store, writer, nil, time.Minute)
	ctx := context.Background()

	evt := &domain.OrderCreatedEvent{
		OrderID: "O1",
		Items:   []domain.OrderLine{{ProductID: "p1", Quantity: 2}},
	}

	// 首次投递：预占成功但发件箱写入失败，整条消息等待重试
	require.Error(t, svc.HandleOrderCreated(ctx, evt))
	assert.Empty(t, writer.events)

	// 重试命中去重标记，但发件箱里没有这张订单的结果行：必须补发，
	// 否则库存已扣减而订单永远等不到 stock-reserved
	writer.writeErr = nil
	store.outcomes["p1"] = domain.OutcomeDuplicate
	require.NoError(t, svc.HandleOrderCreated(ctx, evt))

	assert.Equal(t, []string{
		domain.TopicStockReserved,
		domain.TopicProductStockDecreased,
	}, writer.eventTypes())
	reserved := writer.events[0].Payload.(*domain.StockReservedEvent)
	assert.Equal(t, "O1", reserved.OrderID)
	assert.Equal(t, int64(2), reserved.Quantity)
}

func TestHandleOrderCreatedPropagatesStoreFailure(t *testing.T) {
	store := &fakeStockStore{
		outcomes: map[string]domain.ReservationOutcome{"p1": domain.OutcomeReserved},
		failures: map[string]error{"p2": errors.New("redis down")},
	}
	writer := &fakeEventWriter{}
	svc := NewReservationService(store, writer, nil, time.Minute)

	err := svc.HandleOrderCreated(context.Background(), &domain.OrderCreatedEvent{
		OrderID: "O1",
		Items: []domain.OrderLine{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.Error(t, err)
	// 失败时整单不写事件，等消息重试；已预占的行靠去重标记兜底
	assert.Zero(t, writer.calls)
}

func TestHandleReleaseStockWritesReleasedEvent(t *testing.T) {
	store := &fakeStockStore{}
	writer := &fakeEventWriter{}
	svc := NewReservationService(store, writer, nil, time.Minute)

	err := svc.HandleReleaseStock(context.Background(), &domain.ReleaseStockEvent{
		OrderID:   "O1",
		ProductID: "p1",
		Quantity:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, store.released)
	require.Len(t, writer.events, 1)
	assert.Equal(t, domain.TopicStockReleased, writer.events[0].EventType)
	released := writer.events[0].Payload.(*domain.StockReleasedEvent)
	assert.Equal(t, int64(2), released.Quantity)
}
