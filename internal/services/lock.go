package services

import (
	"slices"
	"sync"
)

// AccountLocker serializes work per account inside the process. Multi-account
// callers always acquire in ascending id order.
type AccountLocker struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func NewAccountLocker() *AccountLocker {
	return &AccountLocker{locks: make(map[string]*accountLock)}
}

// Lock acquires every id (deduplicated, sorted) and returns the matching unlock.
func (l *AccountLocker) Lock(ids ...string) func() {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]*accountLock, 0, len(ordered))
	for _, id := range ordered {
		lock := l.acquire(id)
		lock.mu.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *AccountLocker) acquire(id string) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &accountLock{}
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *AccountLocker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock := l.locks[id]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *AccountLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
