package partition

import (
	"fmt"
	"sync"
)

// ErrLocksClosed is returned when acquiring a lock after Close.
var ErrLocksClosed = fmt.Errorf("partition: key locks closed")

// KeyLocks serializes merges targeting the same partition key while
// letting merges on different keys proceed in parallel.
type KeyLocks struct {
	locks    map[string]*sync.Mutex
	globalMu sync.RWMutex
	inFlight sync.WaitGroup
	closed   bool
	closedMu sync.RWMutex
}

// NewKeyLocks creates an empty lock table.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the named key. The caller must invoke the returned
// release function exactly once.
func (kl *KeyLocks) Acquire(key string) (release func(), err error) {
	if err := kl.checkClosed(); err != nil {
		return nil, err
	}

	kl.inFlight.Add(1)

	// Re-check after joining the in-flight group so Close cannot slip
	// between the check and the Add.
	if err := kl.checkClosed(); err != nil {
		kl.inFlight.Done()
		return nil, err
	}

	lock := kl.getKeyLock(key)
	lock.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.Unlock()
			kl.inFlight.Done()
		})
	}, nil
}

// getKeyLock returns the lock for a key, creating one if needed.
func (kl *KeyLocks) getKeyLock(key string) *sync.Mutex {
	kl.globalMu.RLock()
	if lock, exists := kl.locks[key]; exists {
		kl.globalMu.RUnlock()
		return lock
	}
	kl.globalMu.RUnlock()

	kl.globalMu.Lock()
	defer kl.globalMu.Unlock()

	// Double-check after acquiring the write lock
	if lock, exists := kl.locks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	kl.locks[key] = lock
	return lock
}

func (kl *KeyLocks) checkClosed() error {
	kl.closedMu.RLock()
	defer kl.closedMu.RUnlock()
	if kl.closed {
		return ErrLocksClosed
	}
	return nil
}

// ActiveKeys returns the number of keys that have been locked at least
// once.
func (kl *KeyLocks) ActiveKeys() int {
	kl.globalMu.RLock()
	defer kl.globalMu.RUnlock()
	return len(kl.locks)
}

// Close rejects new acquisitions and waits for holders to release.
func (kl *KeyLocks) Close() error {
	kl.closedMu.Lock()
	kl.closed = true
	kl.closedMu.Unlock()

	kl.inFlight.Wait()
	return nil
}
