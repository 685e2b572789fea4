package billing

import (
	"sync"

	"github.com/efusa/academy/academy"
)

// playerLocks hands out one mutex per player. Entries are reference counted
// and dropped once nobody holds or waits on them.
type playerLocks struct {
	mu    sync.Mutex
	locks map[academy.PlayerID]*playerLock
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[academy.PlayerID]*playerLock)}
}

// Lock blocks until the player's mutex is held and returns its release func.
func (l *playerLocks) Lock(id academy.PlayerID) func() {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &playerLock{}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
