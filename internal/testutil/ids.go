package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/skirmish/internal/model"
)

// SequentialIDs generates predictable event ids: "<prefix>-0001",
// "<prefix>-0002", ... The same script with a fresh generator produces
// byte-identical event logs.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates an id generator. An empty prefix means "evt".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "evt"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next id.
func (g *SequentialIDs) Next() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}

// RoomCodes returns a generator that yields codes in order and then
// repeats the last one.
func RoomCodes(codes ...model.SessionID) func() model.SessionID {
	var n atomic.Int64
	return func() model.SessionID {
		i := min(int(n.Add(1))-1, len(codes)-1)
		return codes[i]
	}
}

// Epoch is the fixed creation time of test sessions.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// FixedNow returns a time source stuck at Epoch.
func FixedNow() func() time.Time {
	return func() time.Time { return Epoch }
}

// ManualClock is a time source that only moves when told to. It starts at
// Epoch.
//
// Thread-safety: ManualClock is safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock at Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// Now returns the current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
