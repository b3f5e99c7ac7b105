package testutil

import (
	"sync"

	"github.com/roach88/skirmish/internal/model"
)

// AuthorClocks hands out per-author logical timestamps for tests.
//
// Each author's clock starts at 0, so the first Next for an author returns 1
// and the same script always stamps the same clocks.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type AuthorClocks struct {
	mu     sync.Mutex
	clocks map[model.PlayerID]int64
}

// NewAuthorClocks creates clocks for any number of authors.
func NewAuthorClocks() *AuthorClocks {
	return &AuthorClocks{clocks: make(map[model.PlayerID]int64)}
}

// Next advances and returns the author's clock.
func (c *AuthorClocks) Next(author model.PlayerID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clocks[author]++
	return c.clocks[author]
}

// Current returns the author's clock without advancing it.
func (c *AuthorClocks) Current(author model.PlayerID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clocks[author]
}

// Reset sets every clock back to 0.
func (c *AuthorClocks) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.clocks)
}
