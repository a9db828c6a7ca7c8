package handler

import (
	"sync"
	"testing"
	"time"
)

func TestLockManager_IndependentRepositories(t *testing.T) {
	lm := NewLockManager()
	lm.Lock(1)

	done := make(chan struct{})
	go func() {
		lm.Lock(2)
		lm.Unlock(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected another repository not to wait for the held lock")
	}
	lm.Unlock(1)
}

func TestLockManager_UnlockUnknownIsNoop(t *testing.T) {
	lm := NewLockManager()
	lm.Unlock(42)
}

func TestLockManager_LockSerializes(t *testing.T) {
	lm := NewLockManager()
	lm.Lock(1)

	acquired := make(chan struct{})
	go func() {
		lm.Lock(1)
		close(acquired)
		lm.Unlock(1)
	}()

	select {
	case <-acquired:
		t.Fatal("Expected Lock to block while held")
	case <-time.After(50 * time.Millisecond):
	}

	lm.Unlock(1)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Expected Lock to be acquired after Unlock")
	}
}

func TestLockManager_Concurrent(t *testing.T) {
	lm := NewLockManager()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.Lock(7)
			counter++
			lm.Unlock(7)
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("Expected counter 50, got %d", counter)
	}
}
