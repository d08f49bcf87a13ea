// Package queue implements the double-buffered command queue between a
// producer goroutine and the render goroutine.
//
// Two slots exist. The producer always appends to the slot addressed as
// current. The consumer flips current while holding the lock of the slot it
// is about to drain, so a producer can never write into a slot that is being
// drained: a producer that raced the flip notices the change after taking
// the lock and retries on the other slot.
//
// Commands keep FIFO order within a StartRequest/EndRequest bracket and
// across brackets, because the consumer drains a slot completely before it
// can flip back to it.
package queue

import (
	"runtime"
	"sync/atomic"

	"github.com/katze7514/ManaGameFramework-sub000/command"
)

// DefaultCapacity is the number of commands each slot reserves up front.
const DefaultCapacity = 1024

type slot struct {
	lock SpinLock
	cmds []command.Command
}

// Queue is a double-buffered command queue.
//
// StartRequest, Request and EndRequest belong to the single producer.
// Drain belongs to the single consumer. Producers and consumers may run on
// different goroutines; concurrent producers need external serialization.
type Queue struct {
	slots [2]slot

	// current is the index of the producer-side slot.
	current atomic.Uint32

	// busy is true while the consumer drains a slot.
	busy atomic.Bool

	// held is the slot index the producer locked in StartRequest, or -1.
	// Only the producer touches it.
	held int

	// notify carries at most one pending wake-up for the consumer.
	notify chan struct{}
}

// New creates a queue whose slots reserve capacity commands each.
// If capacity is 0 or negative, DefaultCapacity is used.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		held:   -1,
		notify: make(chan struct{}, 1),
	}
	for i := range q.slots {
		q.slots[i].cmds = make([]command.Command, 0, capacity)
	}
	return q
}

// StartRequest locks the producer-side slot.
//
// With wait set it spins until the slot is acquired. Without wait it
// returns false at once when the slot is held by the consumer, or when a
// bracket is already open. A successful call must be paired with EndRequest.
func (q *Queue) StartRequest(wait bool) bool {
	if q.held >= 0 {
		return false
	}
	for {
		i := q.current.Load()
		s := &q.slots[i]
		if !s.lock.TryLock() {
			if !wait {
				return false
			}
			runtime.Gosched()
			continue
		}
		// The consumer may have flipped between the load and the lock.
		if q.current.Load() != i {
			s.lock.Unlock()
			continue
		}
		q.held = int(i)
		return true
	}
}

// Request appends cmd to the slot locked by StartRequest.
// It reports false when no bracket is open.
func (q *Queue) Request(cmd command.Command) bool {
	if q.held < 0 || cmd == nil {
		return false
	}
	s := &q.slots[q.held]
	s.cmds = append(s.cmds, cmd)
	return true
}

// EndRequest unlocks the producer-side slot and wakes the consumer.
func (q *Queue) EndRequest() {
	if q.held < 0 {
		return
	}
	q.slots[q.held].lock.Unlock()
	q.held = -1

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel that receives a value after EndRequest.
// The consumer waits on it instead of spinning while idle.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Busy reports whether the consumer is draining a slot.
func (q *Queue) Busy() bool {
	return q.busy.Load()
}

// Drain executes every command of the producer-side slot in order and
// returns how many were executed.
//
// It returns 0 without blocking when the slot is empty or the producer
// currently holds it; the next EndRequest signals Notify again.
func (q *Queue) Drain(exec func(command.Command)) int {
	if !q.busy.CompareAndSwap(false, true) {
		return 0
	}
	defer q.busy.Store(false)

	i := q.current.Load()
	s := &q.slots[i]
	if !s.lock.TryLock() {
		return 0
	}
	if len(s.cmds) == 0 {
		s.lock.Unlock()
		return 0
	}

	// Producers move to the other slot from here on.
	q.current.Store(1 - i)

	n := len(s.cmds)
	for _, cmd := range s.cmds {
		exec(cmd)
	}
	clear(s.cmds)
	s.cmds = s.cmds[:0]
	s.lock.Unlock()
	return n
}

// Reset drops all queued commands. It must not run concurrently with the
// producer or Drain.
func (q *Queue) Reset() {
	for i := range q.slots {
		clear(q.slots[i].cmds)
		q.slots[i].cmds = q.slots[i].cmds[:0]
		q.slots[i].lock.Unlock()
	}
	q.current.Store(0)
	q.held = -1
}
