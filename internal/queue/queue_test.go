package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue()
	err := q.Publish(context.Background(), "nobody", []byte("{}"))
	assert.Error(t, err)
}

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	q := NewInMemoryQueue()
	var got atomic.Int32
	for i := 0; i < 2; i++ {
		require.NoError(t, q.Subscribe("topic", func(ctx context.Context, body []byte) error {
			if string(body) == "hello" {
				got.Add(1)
			}
			return nil
		}))
	}

	require.NoError(t, q.Publish(context.Background(), "topic", []byte("hello")))
	q.Wait()
	assert.Equal(t, int32(2), got.Load())
}

func TestHandlerIsRetriedUntilSuccess(t *testing.T) {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	var calls atomic.Int32
	require.NoError(t, q.Subscribe("topic", func(ctx context.Context, body []byte) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "topic", nil))
	q.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestHandlerGivesUpAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	q.MaxRetries = 2
	var calls atomic.Int32
	require.NoError(t, q.Subscribe("topic", func(ctx context.Context, body []byte) error {
		calls.Add(1)
		return errors.New("permanent")
	}))

	require.NoError(t, q.Publish(context.Background(), "topic", nil))
	q.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliveryOutlivesPublisherContext(t *testing.T) {
	q := NewInMemoryQueue()
	var sawCancel atomic.Bool
	require.NoError(t, q.Subscribe("topic", func(ctx context.Context, body []byte) error {
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Publish(ctx, "topic", nil))
	q.Wait()
	assert.False(t, sawCancel.Load())
}

func TestHeaderInt(t *testing.T) {
	tbl := amqp.Table{retryHeader: int32(2)}
	assert.Equal(t, 2, headerInt(tbl[retryHeader]))
	assert.Equal(t, 4, headerInt(int64(4)))
	assert.Equal(t, 0, headerInt(nil))
	assert.Equal(t, 0, headerInt("3"))
}
