package queue

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a mutual exclusion flag acquired by spinning.
//
// It is meant for very short critical sections such as handing a command
// slot between the producer and the consumer. Waiting sides yield with
// runtime.Gosched between attempts.
//
// The zero value is an unlocked SpinLock.
type SpinLock struct {
	held atomic.Bool
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

// Lock spins until the lock is acquired.
func (l *SpinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// Unlock releases the lock. Unlocking a free lock is a no-op.
func (l *SpinLock) Unlock() {
	l.held.Store(false)
}

// Locked reports whether the lock is currently held.
func (l *SpinLock) Locked() bool {
	return l.held.Load()
}
