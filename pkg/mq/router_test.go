package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDeadLetterer 记录转入死信的消息
type memDeadLetterer struct {
	messages []*Message
	attempts []int
	causes   []error
	sendErr  error
}

func (d *memDeadLetterer) Send(ctx context.Context, original *Message, attempts int, cause error) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.messages = append(d.messages, original)
	d.attempts = append(d.attempts, attempts)
	d.causes = append(d.causes, cause)
	return nil
}

func TestProcessSucceedsWithoutDLT(t *testing.T) {
	dlq := &memDeadLetterer{}
	router := NewRouter(Config{}, dlq, 3)

	calls := 0
	router.process(context.Background(), &Message{Topic: "order-created"}, func(ctx context.Context, msg *Message) error {
		calls++
		return nil
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, dlq.messages)
}

func TestProcessRetriesThenRoutesToDLT(t *testing.T) {
	dlq := &memDeadLetterer{}
	router := NewRouter(Config{}, dlq, 3)

	handlerErr := errors.New("handler exploded")
	calls := 0
	msg := &Message{Topic: "order-created", Key: "O1"}
	router.process(context.Background(), msg, func(ctx context.Context, m *Message) error {
		calls++
		return handlerErr
	})

	assert.Equal(t, 3, calls)
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, msg, dlq.messages[0])
	assert.Equal(t, 3, dlq.attempts[0])
	assert.ErrorIs(t, dlq.causes[0], handlerErr)
}

func TestProcessRecoversWithinRetryBudget(t *testing.T) {
	dlq := &memDeadLetterer{}
	router := NewRouter(Config{}, dlq, 3)

	calls := 0
	router.process(context.Background(), &Message{Topic: "order-created"}, func(ctx context.Context, m *Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.Equal(t, 3, calls)
	assert.Empty(t, dlq.messages)
}

func TestProcessStopsRetryingOnContextCancel(t *testing.T) {
	dlq := &memDeadLetterer{}
	router := NewRouter(Config{}, dlq, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	router.process(ctx, &Message{Topic: "order-created"}, func(ctx context.Context, m *Message) error {
		calls++
		cancel()
		return errors.New("failing while shutting down")
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, dlq.messages)
}
