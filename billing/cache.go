package billing

import (
	"sync"

	"github.com/efusa/academy/academy"
)

// statusCache memoizes status records per player.
//
// An entry is valid only for the month and fee it was computed with. Every
// write that touches a player bumps its generation, and Put discards results
// computed against an older generation.
type statusCache struct {
	mu      sync.Mutex
	entries map[academy.PlayerID]cachedStatus
	gens    map[academy.PlayerID]uint64
	epoch   uint64
}

type cachedStatus struct {
	record academy.StatusRecord
	month  academy.Month
	fee    int64
	gen    uint64
}

func newStatusCache() *statusCache {
	return &statusCache{
		entries: make(map[academy.PlayerID]cachedStatus),
		gens:    make(map[academy.PlayerID]uint64),
	}
}

func (c *statusCache) Get(id academy.PlayerID, month academy.Month, fee int64) (academy.StatusRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || !e.month.Equal(month) || e.fee != fee {
		return academy.StatusRecord{}, false
	}
	return e.record, true
}

// Generation returns a token to hand back to Put.
func (c *statusCache) Generation(id academy.PlayerID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.gens[id]
}

func (c *statusCache) Put(id academy.PlayerID, gen uint64, s cachedStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.epoch+c.gens[id] {
		return
	}
	s.gen = gen
	c.entries[id] = s
}

func (c *statusCache) Invalidate(id academy.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[id]++
	delete(c.entries, id)
}

// Clear drops every entry and invalidates in-flight computations.
func (c *statusCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries = make(map[academy.PlayerID]cachedStatus)
}
