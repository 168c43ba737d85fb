// Package sync provides the synchronization primitives that guard the
// memory subsystem's shared state.
package sync

import (
	"runtime"
	"sync/atomic"
)

// spinsBeforeYield bounds the number of failed acquisition attempts before
// the spinning task yields the processor.
const spinsBeforeYield = 64

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. It is intended for critical sections that
// complete in bounded time, such as a single free-list operation. Any attempt
// to re-acquire a lock already held by the current task will cause a deadlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
func (l *Spinlock) Acquire() {
	for spins := 0; !l.TryToAcquire(); spins++ {
		if spins >= spinsBeforeYield {
			spins = 0
			runtime.Gosched()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
