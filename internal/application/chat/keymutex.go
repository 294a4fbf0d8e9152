package chat

import (
	"sync"

	"github.com/google/uuid"
)

// keyMutex serializes work per session without a global lock. Entries are
// reference-counted and released once the last holder unlocks, so the map
// does not grow with session churn.
type keyMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[uuid.UUID]*keyLock)}
}

// Lock acquires the per-key lock and returns its unlock function.
func (k *keyMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
