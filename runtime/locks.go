package runtime

import (
	"code-lab/domain/session"
	"sync"
)

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// SessionLocks hands out one mutex per session.
// Entries are reference counted and dropped once nobody holds or waits on
// them, so idle sessions cost nothing.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[session.ID]*sessionLock
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[session.ID]*sessionLock)}
}

// Lock blocks until the session's critical section is free and returns the
// function releasing it.
func (l *SessionLocks) Lock(id session.ID) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *SessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
