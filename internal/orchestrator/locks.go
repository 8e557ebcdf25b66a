package orchestrator

import "sync"

// sessionLocks hands out one mutex per session id. Entries are reference
// counted and dropped once no caller holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[SessionID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[SessionID]*sessionLock)}
}

// Lock blocks until id is free and returns the matching unlock function.
func (l *sessionLocks) Lock(id SessionID) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &sessionLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size reports how many ids currently have a lock entry.
func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
