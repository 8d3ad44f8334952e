package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/product/domain"
)

// memSyncStore 内存版同步存储，同时充当 SyncUnit、SyncTx 与 ProductRepository
type memSyncStore struct {
	applied    map[string]bool
	quantities map[string]int64
}

func newMemSyncStore() *memSyncStore {
	return &memSyncStore{applied: make(map[string]bool), quantities: make(map[string]int64)}
}

func (s *memSyncStore) InTx(ctx context.Context, fn func(tx domain.SyncTx) error) error {
	return fn(s)
}

func (s *memSyncStore) Applied(eventID string) (bool, error) {
	return s.applied[eventID], nil
}

func (s *memSyncStore) MarkApplied(eventID, productID string, delta int64) error {
	s.applied[eventID] = true
	return nil
}

func (s *memSyncStore) AdjustQuantity(productID string, delta int64) error {
	s.quantities[productID] += delta
	return nil
}

func (s *memSyncStore) Get(ctx context.Context, productID string) (*domain.Product, error) {
	qty, ok := s.quantities[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &domain.Product{ProductID: productID, Quantity: qty}, nil
}

func TestSyncAppliesDecreaseAndRelease(t *testing.T) {
	store := newMemSyncStore()
	store.quantities["p1"] = 10
	svc := NewSyncService(store, store)
	ctx := context.Background()

	require.NoError(t, svc.HandleStockDecreased(ctx, &domain.ProductStockDecreasedEvent{
		EventID: "1", ProductID: "p1", Quantity: 3,
	}))
	assert.Equal(t, int64(7), store.quantities["p1"])

	require.NoError(t, svc.HandleStockReleased(ctx, &domain.StockReleasedEvent{
		EventID: "2", ProductID: "p1", Quantity: 3,
	}))
	assert.Equal(t, int64(10), store.quantities["p1"])
}

func TestSyncIsIdempotentPerEventID(t *testing.T) {
	store := newMemSyncStore()
	store.quantities["p1"] = 10
	svc := NewSyncService(store, store)
	ctx := context.Background()

	evt := &domain.ProductStockDecreasedEvent{EventID: "7", ProductID: "p1", Quantity: 4}
	require.NoError(t, svc.HandleStockDecreased(ctx, evt))
	require.NoError(t, svc.HandleStockDecreased(ctx, evt))
	require.NoError(t, svc.HandleStockDecreased(ctx, evt))

	assert.Equal(t, int64(6), store.quantities["p1"])
}

func TestSyncRejectsEventWithoutID(t *testing.T) {
	svc := NewSyncService(newMemSyncStore(), newMemSyncStore())
	err := svc.HandleStockDecreased(context.Background(), &domain.ProductStockDecreasedEvent{ProductID: "p1", Quantity: 1})
	assert.Error(t, err)
}
