package sessions

import (
	"strings"
	"sync"
)

// Locker serialises chat turns for the same session while letting different
// sessions proceed concurrently (§4.3: "An upstream request router must
// ensure no two chat turns for the same session execute in parallel;
// parallel turns for different sessions are allowed").
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns a ready-to-use Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the named session is free, then returns an unlock
// function the caller must invoke exactly once to release it. An empty
// session ID is never contended and returns a no-op unlock.
func (l *Locker) Lock(sessionID string) func() {
	if strings.TrimSpace(sessionID) == "" {
		return func() {}
	}

	l.mu.Lock()
	lock := l.locks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		l.locks[sessionID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
