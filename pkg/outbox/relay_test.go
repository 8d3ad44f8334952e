package outbox

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 内存版发件箱存储
type memStore struct {
	nextID uint64
	events map[uint64]*Event
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, events: make(map[uint64]*Event)}
}

func (s *memStore) add(eventType, payload string) uint64 {
	id := s.nextID
	s.nextID++
	s.events[id] = &Event{
		ID:        id,
		EventType: eventType,
		Payload:   payload,
		Status:    StatusNew,
		CreatedAt: time.Now(),
	}
	return id
}

func (s *memStore) FetchNewBatch(ctx context.Context, limit int) ([]Event, error) {
	var out []Event
	for _, e := range s.events {
		if e.Status == StatusNew {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkSent(ctx context.Context, id uint64) error {
	now := time.Now()
	s.events[id].Status = StatusSent
	s.events[id].SentAt = &now
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id uint64, cause string) error {
	s.events[id].Status = StatusFailed
	s.events[id].LastError = cause
	return nil
}

func (s *memStore) RequeueFailed(ctx context.Context, ids []uint64) (int64, error) {
	var n int64
	for _, e := range s.events {
		if e.Status != StatusFailed {
			continue
		}
		if len(ids) > 0 && !contains(ids, e.ID) {
			continue
		}
		e.Status = StatusNew
		e.LastError = ""
		n++
	}
	return n, nil
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestRelayPublishesInIDOrderAndMarksSent(t *testing.T) {
	store := newMemStore()
	first := store.add("order-created", `{"order_id":"O1"}`)
	second := store.add("order-created", `{"order_id":"O2"}`)

	relay := NewRelay(store, time.Millisecond, 100, nil, nil)
	var published []uint64
	relay.Register("order-created", func(ctx context.Context, event *Event) error {
		published = append(published, event.ID)
		return nil
	})

	relay.tick(context.Background())

	assert.Equal(t, []uint64{first, second}, published)
	assert.Equal(t, StatusSent, store.events[first].Status)
	assert.Equal(t, StatusSent, store.events[second].Status)
	assert.NotNil(t, store.events[first].SentAt)
}

func TestRelayMarksFailedOnPublishError(t *testing.T) {
	store := newMemStore()
	id := store.add("order-created", `{"order_id":"O1"}`)

	relay := NewRelay(store, time.Millisecond, 100, nil, nil)
	relay.Register("order-created", func(ctx context.Context, event *Event) error {
		return errors.New("broker unreachable")
	})

	relay.tick(context.Background())

	assert.Equal(t, StatusFailed, store.events[id].Status)
	assert.Equal(t, "broker unreachable", store.events[id].LastError)
}

func TestRelayFailsRowsWithoutRegisteredPublisher(t *testing.T) {
	store := newMemStore()
	id := store.add("mystery-event", `{}`)

	relay := NewRelay(store, time.Millisecond, 100, nil, nil)
	relay.tick(context.Background())

	assert.Equal(t, StatusFailed, store.events[id].Status)
	assert.Contains(t, store.events[id].LastError, "no publisher registered")
}

func TestRelaySkipsFailedRowsUntilRequeued(t *testing.T) {
	store := newMemStore()
	id := store.add("order-created", `{"order_id":"O1"}`)

	relay := NewRelay(store, time.Millisecond, 100, nil, nil)
	attempts := 0
	relay.Register("order-created", func(ctx context.Context, event *Event) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	ctx := context.Background()
	relay.tick(ctx)
	require.Equal(t, StatusFailed, store.events[id].Status)

	// FAILED 行不会被再次拉取
	relay.tick(ctx)
	assert.Equal(t, 1, attempts)

	// 显式重新入队后下一轮发布成功
	n, err := store.RequeueFailed(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	relay.tick(ctx)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, StatusSent, store.events[id].Status)
}

func TestRelayFailureDoesNotBlockBatchSiblings(t *testing.T) {
	store := newMemStore()
	bad := store.add("order-created", `{"order_id":"bad"}`)
	good := store.add("order-created", `{"order_id":"good"}`)

	relay := NewRelay(store, time.Millisecond, 100, nil, nil)
	relay.Register("order-created", func(ctx context.Context, event *Event) error {
		var payload struct {
			OrderID string `json:"order_id"`
		}
		require.NoError(t, event.UnmarshalPayload(&payload))
		if payload.OrderID == "bad" {
			return errors.New("poison row")
		}
		return nil
	})

	relay.tick(context.Background())

	assert.Equal(t, StatusFailed, store.events[bad].Status)
	assert.Equal(t, StatusSent, store.events[good].Status)
}
