package server

import "sync"

// LockManager hands out one non-blocking lock per key so that a build is
// never promoted twice concurrently while different builds proceed in
// parallel.
type LockManager struct {
	mu    sync.Mutex             // guards locks
	locks map[string]*sync.Mutex // one per build
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock acquires the lock for key without waiting. It returns false when
// the key is already held.
func (lm *LockManager) TryLock(key string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[key] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the lock for key. Unknown keys are ignored.
func (lm *LockManager) Unlock(key string) {
	lm.mu.Lock()
	lock := lm.locks[key]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}

func buildKey(name, number string) string {
	return name + "/" + number
}
