package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/model"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for i := int64(1); i <= 3; i++ {
		require.True(t, q.Enqueue(model.MoveEvent{Seq: i}))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, ev.Seq)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_CloseDrainsThenStops(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(model.MoveEvent{Seq: 1})
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(model.MoveEvent{Seq: 2}))

	ev, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.Seq)

	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestEventQueue_NextWakesOnEnqueue(t *testing.T) {
	q := newEventQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var got model.MoveEvent
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err = q.Next(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(model.MoveEvent{Seq: 7})
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Seq)
}
