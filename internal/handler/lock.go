package handler

import "sync"

// LockManager serializes work per repository.
//
// The outer mutex only guards the map. Each repository has its own mutex, so
// different repositories are processed concurrently while updates to the same
// repository happen one at a time.
type LockManager struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[int64]*sync.Mutex),
	}
}

// Lock blocks until the lock for repoID is held.
func (lm *LockManager) Lock(repoID int64) {
	lm.get(repoID).Lock()
}

// Unlock releases the lock for repoID. Unlocking a repository that was never
// locked is a no-op.
func (lm *LockManager) Unlock(repoID int64) {
	lm.mu.Lock()
	lock := lm.locks[repoID]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}

func (lm *LockManager) get(repoID int64) *sync.Mutex {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, exists := lm.locks[repoID]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[repoID] = lock
	}
	return lock
}
