package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/cache"
)

func newTestStore(t *testing.T) *StockStore {
	t.Helper()
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := cache.New(cache.Config{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return NewStockStore(c)
}

func TestReserveDecrementsThenDeduplicatesReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, "p1", 5))

	outcome, err := store.Reserve(ctx, "p1", "O1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReserved, outcome)

	stock, err := store.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5-3), stock)

	// 同一订单重放命中去重标记，不二次扣减
	outcome, err = store.Reserve(ctx, "p1", "O1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)

	stock, err = store.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stock)
}

func TestReserveRejectsWhenStockInsufficient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, "p1", 2))

	outcome, err := store.Reserve(ctx, "p1", "O1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInsufficient, outcome)

	// 被拒的预占不留任何状态：库存不变，同一订单换个数量仍可成功
	stock, err := store.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stock)

	outcome, err = store.Reserve(ctx, "p1", "O1", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReserved, outcome)
}

func TestReserveUnknownProductIsInsufficient(t *testing.T) {
	store := newTestStore(t)

	outcome, err := store.Reserve(context.Background(), "ghost", "O1", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInsufficient, outcome)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, "p1", 5))

	// 两个订单并发各要 3 件，库存 5：脚本内的读-判-写不可分割，
	// 恰好一单成功、一单被拒，库存不为负
	var wg sync.WaitGroup
	outcomes := make([]domain.ReservationOutcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = store.Reserve(ctx, "p1", fmt.Sprintf("O%d", i), 3, time.Minute)
		}(i)
	}
	wg.Wait()

	byOutcome := map[domain.ReservationOutcome]int{}
	for i := range outcomes {
		require.NoError(t, errs[i])
		byOutcome[outcomes[i]]++
	}
	assert.Equal(t, 1, byOutcome[domain.OutcomeReserved])
	assert.Equal(t, 1, byOutcome[domain.OutcomeInsufficient])

	stock, err := store.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stock)
}

func TestManyConcurrentReservesDrainToZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, "p1", 4))

	const orders = 10
	var wg sync.WaitGroup
	outcomes := make([]domain.ReservationOutcome, orders)
	errs := make([]error, orders)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = store.Reserve(ctx, "p1", fmt.Sprintf("O%d", i), 1, time.Minute)
		}(i)
	}
	wg.Wait()

	reserved := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if outcomes[i] == domain.OutcomeReserved {
			reserved++
		}
	}
	assert.Equal(t, 4, reserved)

	stock, err := store.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stock)
}

func TestReleaseInvertsReserve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, "p1", 5))

	outcome, err := store.Reserve(ctx, "p1", "O1", 3, time.Minute)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeReserved, outcome)

	require.NoError(t, store.Release(ctx, "p1", "O1", 3))

	stock, err := store.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stock)

	// 释放同时清掉去重标记：同一订单之后可以重新预占
	outcome, err = store.Reserve(ctx, "p1", "O1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReserved, outcome)
}

func TestReserveDedupIsPerOrderLine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, "p1", 5))
	require.NoError(t, store.SetStock(ctx, "p2", 5))

	// 去重标记是该订单已预占商品的集合：同单跨商品不互相挡路
	outcome, err := store.Reserve(ctx, "p1", "O1", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReserved, outcome)

	outcome, err = store.Reserve(ctx, "p2", "O1", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReserved, outcome)

	outcome, err = store.Reserve(ctx, "p1", "O1", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Reserve(context.Background(), "p1", "O1", 0, time.Minute)
	assert.Error(t, err)
	assert.Error(t, store.Release(context.Background(), "p1", "O1", -1))
}
