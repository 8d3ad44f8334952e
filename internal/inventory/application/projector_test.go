package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
)

// memProjectionStore 内存版投影存储，同时充当 ProjectionUnit 与 ProjectionTx
type memProjectionStore struct {
	ledger map[uint64]*domain.LedgerEntry
	stock  map[string]int64
}

func newMemProjectionStore() *memProjectionStore {
	return &memProjectionStore{
		ledger: make(map[uint64]*domain.LedgerEntry),
		stock:  make(map[string]int64),
	}
}

func (s *memProjectionStore) InTx(ctx context.Context, fn func(tx domain.ProjectionTx) error) error {
	return fn(s)
}

func (s *memProjectionStore) LedgerExists(outboxID uint64) (bool, error) {
	_, ok := s.ledger[outboxID]
	return ok, nil
}

func (s *memProjectionStore) InsertLedger(entry *domain.LedgerEntry) error {
	s.ledger[entry.OutboxID] = entry
	return nil
}

func (s *memProjectionStore) AdjustStock(productID string, delta int64) (bool, error) {
	if delta < 0 && s.stock[productID] < -delta {
		return false, nil
	}
	s.stock[productID] += delta
	return true, nil
}

func TestProjectorAppliesReserveAndRelease(t *testing.T) {
	store := newMemProjectionStore()
	store.stock["p1"] = 10
	projector := NewProjector(store, nil)
	ctx := context.Background()

	require.NoError(t, projector.Project(ctx, 1, "p1", 3, domain.LedgerReserved))
	assert.Equal(t, int64(7), store.stock["p1"])

	require.NoError(t, projector.Project(ctx, 2, "p1", 3, domain.LedgerReleased))
	assert.Equal(t, int64(10), store.stock["p1"])

	assert.Len(t, store.ledger, 2)
	assert.Equal(t, domain.LedgerReserved, store.ledger[1].EventType)
	assert.Equal(t, domain.LedgerReleased, store.ledger[2].EventType)
}

func TestProjectorIsIdempotentPerOutboxID(t *testing.T) {
	store := newMemProjectionStore()
	store.stock["p1"] = 10
	projector := NewProjector(store, nil)
	ctx := context.Background()

	require.NoError(t, projector.Project(ctx, 7, "p1", 4, domain.LedgerReserved))
	require.NoError(t, projector.Project(ctx, 7, "p1", 4, domain.LedgerReserved))
	require.NoError(t, projector.Project(ctx, 7, "p1", 4, domain.LedgerReserved))

	// 重放任意次只扣一次
	assert.Equal(t, int64(6), store.stock["p1"])
	assert.Len(t, store.ledger, 1)
}

func TestProjectorRejectsDecrementBelowZero(t *testing.T) {
	store := newMemProjectionStore()
	store.stock["p1"] = 2
	projector := NewProjector(store, nil)

	err := projector.Project(context.Background(), 9, "p1", 5, domain.LedgerReserved)
	require.Error(t, err)

	// 守卫拒绝时不落台账，库存不变
	assert.Equal(t, int64(2), store.stock["p1"])
	assert.Empty(t, store.ledger)
}

func TestProjectorRejectsInvalidQuantity(t *testing.T) {
	projector := NewProjector(newMemProjectionStore(), nil)
	assert.Error(t, projector.Project(context.Background(), 1, "p1", 0, domain.LedgerReserved))
}
