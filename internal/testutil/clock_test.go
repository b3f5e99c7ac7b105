package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/skirmish/internal/model"
)

func TestAuthorClocks_StartAtZero(t *testing.T) {
	clocks := NewAuthorClocks()
	assert.Equal(t, int64(0), clocks.Current("A"))
}

func TestAuthorClocks_AreIndependentPerAuthor(t *testing.T) {
	clocks := NewAuthorClocks()

	assert.Equal(t, int64(1), clocks.Next("A"))
	assert.Equal(t, int64(2), clocks.Next("A"))
	assert.Equal(t, int64(1), clocks.Next("B"))
	assert.Equal(t, int64(2), clocks.Current("A"))
	assert.Equal(t, int64(1), clocks.Current("B"))
}

func TestAuthorClocks_Reset(t *testing.T) {
	clocks := NewAuthorClocks()
	clocks.Next("A")
	clocks.Next("B")

	clocks.Reset()

	assert.Equal(t, int64(0), clocks.Current("A"))
	assert.Equal(t, int64(1), clocks.Next("B"))
}

func TestAuthorClocks_ConcurrentNext(t *testing.T) {
	clocks := NewAuthorClocks()
	const goroutines = 50

	var wg sync.WaitGroup
	seen := make(chan int64, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- clocks.Next("A")
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for v := range seen {
		assert.False(t, unique[v], "duplicate clock value %d", v)
		unique[v] = true
	}
	assert.Len(t, unique, goroutines)
	assert.Equal(t, int64(goroutines), clocks.Current("A"))
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("")
	assert.Equal(t, "evt-0001", ids.Next())
	assert.Equal(t, "evt-0002", ids.Next())

	other := NewSequentialIDs("step")
	assert.Equal(t, "step-0001", other.Next())
}

func TestRoomCodes_RepeatsLast(t *testing.T) {
	next := RoomCodes("AAAAAA", "BBBBBB")
	assert.Equal(t, model.SessionID("AAAAAA"), next())
	assert.Equal(t, model.SessionID("BBBBBB"), next())
	assert.Equal(t, model.SessionID("BBBBBB"), next())
}

func TestFixedNow(t *testing.T) {
	now := FixedNow()
	assert.Equal(t, Epoch, now())
	assert.Equal(t, now(), now())
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock()
	assert.Equal(t, Epoch, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), clock.Now())
}
