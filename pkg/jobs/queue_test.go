package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDrainsOnStop(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	q := New[int]("test", func(ctx context.Context, v int) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
		return nil
	}, Config{Workers: 1, BufferSize: 8})

	q.Start(context.Background())
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Submit(context.Background(), i))
	}
	q.Stop()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var calls int32
	q := New[string]("retry", func(ctx context.Context, v string) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Submit(context.Background(), "x"))
	q.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q := New[string]("fail", func(ctx context.Context, v string) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}, Config{MaxRetries: 2, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Submit(context.Background(), "x"))
	q.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := New[int]("idle", func(context.Context, int) error { return nil }, Config{})
	assert.ErrorIs(t, q.Submit(context.Background(), 1), ErrQueueClosed)

	q.Start(context.Background())
	q.Stop()
	q.Stop()
	assert.ErrorIs(t, q.Submit(context.Background(), 1), ErrQueueClosed)
}
