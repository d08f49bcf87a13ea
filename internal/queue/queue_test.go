package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/katze7514/ManaGameFramework-sub000/command"
)

func seq(n int) command.Command {
	return command.TextDraw{Font: uint32(n)}
}

func TestQueue_DrainOrder(t *testing.T) {
	q := New(4)

	if !q.StartRequest(true) {
		t.Fatal("StartRequest(true) failed")
	}
	for i := range 10 {
		if !q.Request(seq(i)) {
			t.Fatalf("Request(%d) failed", i)
		}
	}
	q.EndRequest()

	var got []uint32
	n := q.Drain(func(c command.Command) {
		got = append(got, c.(command.TextDraw).Font)
	})
	if n != 10 {
		t.Fatalf("Drain() = %d, want 10", n)
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}

	if n := q.Drain(func(command.Command) { t.Error("unexpected command") }); n != 0 {
		t.Errorf("Drain() on empty queue = %d, want 0", n)
	}
}

func TestQueue_NonBlockingStartRequest(t *testing.T) {
	q := New(0)

	if !q.StartRequest(false) {
		t.Fatal("first StartRequest(false) failed")
	}

	done := make(chan bool, 1)
	go func() { done <- q.StartRequest(false) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("second StartRequest(false) succeeded while a bracket is open")
		}
	case <-time.After(time.Second):
		t.Fatal("second StartRequest(false) blocked")
	}
	q.EndRequest()

	if !q.StartRequest(false) {
		t.Error("StartRequest(false) after EndRequest failed")
	}
	q.EndRequest()
}

func TestQueue_NonBlockingAgainstConsumer(t *testing.T) {
	q := New(0)

	// Simulate the consumer holding the producer-side slot.
	q.slots[q.current.Load()].lock.Lock()
	if q.StartRequest(false) {
		t.Fatal("StartRequest(false) succeeded on a locked slot")
	}
	q.slots[q.current.Load()].lock.Unlock()

	if !q.StartRequest(false) {
		t.Fatal("StartRequest(false) failed on a free slot")
	}
	q.EndRequest()
}

func TestQueue_RequestOutsideBracket(t *testing.T) {
	q := New(0)
	if q.Request(seq(1)) {
		t.Error("Request without StartRequest succeeded")
	}
	q.EndRequest() // no-op

	q.StartRequest(true)
	if q.Request(nil) {
		t.Error("Request(nil) succeeded")
	}
	q.EndRequest()
}

func TestQueue_DrainSkipsHeldSlot(t *testing.T) {
	q := New(0)
	q.StartRequest(true)
	q.Request(seq(1))

	if n := q.Drain(func(command.Command) {}); n != 0 {
		t.Errorf("Drain() while producer holds slot = %d, want 0", n)
	}
	q.EndRequest()

	if n := q.Drain(func(command.Command) {}); n != 1 {
		t.Errorf("Drain() after EndRequest = %d, want 1", n)
	}
}

func TestQueue_Notify(t *testing.T) {
	q := New(0)
	q.StartRequest(true)
	q.Request(seq(1))
	q.EndRequest()
	q.StartRequest(true)
	q.EndRequest()

	select {
	case <-q.Notify():
	default:
		t.Fatal("Notify() not signalled after EndRequest")
	}
	select {
	case <-q.Notify():
		t.Fatal("Notify() holds more than one pending wake-up")
	default:
	}
}

func TestQueue_Reset(t *testing.T) {
	q := New(0)
	q.StartRequest(true)
	q.Request(seq(1))
	q.EndRequest()
	q.Reset()

	if n := q.Drain(func(command.Command) {}); n != 0 {
		t.Errorf("Drain() after Reset = %d, want 0", n)
	}
}

// TestQueue_ConcurrentFIFO runs a producer and a consumer on separate
// goroutines and checks every command arrives once and in order.
func TestQueue_ConcurrentFIFO(t *testing.T) {
	const (
		brackets  = 500
		perBatch  = 7
		wantTotal = brackets * perBatch
	)

	q := New(16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n := 0
		for range brackets {
			q.StartRequest(true)
			for range perBatch {
				q.Request(seq(n))
				n++
			}
			q.EndRequest()
		}
	}()

	var got []uint32
	deadline := time.After(10 * time.Second)
	for len(got) < wantTotal {
		select {
		case <-q.Notify():
		case <-time.After(time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out with %d of %d commands", len(got), wantTotal)
		}
		q.Drain(func(c command.Command) {
			got = append(got, c.(command.TextDraw).Font)
		})
	}
	wg.Wait()
	q.Drain(func(c command.Command) {
		got = append(got, c.(command.TextDraw).Font)
	})

	if len(got) != wantTotal {
		t.Fatalf("received %d commands, want %d", len(got), wantTotal)
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestSpinLock(t *testing.T) {
	var l SpinLock
	if !l.TryLock() {
		t.Fatal("TryLock() on free lock failed")
	}
	if l.TryLock() {
		t.Fatal("TryLock() on held lock succeeded")
	}
	if !l.Locked() {
		t.Error("Locked() = false")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Lock()
		l.Unlock()
	}()
	time.Sleep(time.Millisecond)
	l.Unlock()
	wg.Wait()
}

func BenchmarkQueue_RequestDrain(b *testing.B) {
	q := New(256)
	cmd := command.SpriteDraw{Texture: 1}
	for b.Loop() {
		q.StartRequest(true)
		for range 256 {
			q.Request(cmd)
		}
		q.EndRequest()
		q.Drain(func(command.Command) {})
	}
}
