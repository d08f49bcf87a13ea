// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// resetPollInterval is how often a waiting render goroutine retries a
// device reset when no frames are requested.
const resetPollInterval = 16 * time.Millisecond

// renderLoop runs frames on a dedicated goroutine.
type renderLoop struct {
	r *Renderer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	active  atomic.Bool

	// requests holds at most one scheduled frame. A nil reply channel
	// means nobody waits for the result.
	requests chan chan Status
}

func newRenderLoop(r *Renderer) *renderLoop {
	return &renderLoop{r: r, requests: make(chan chan Status, 1)}
}

// Start starts the render goroutine of an asynchronous renderer. The
// goroutine stops when ctx is cancelled or Close is called; Render then
// runs frames on the calling goroutine again.
func (r *Renderer) Start(ctx context.Context) error {
	if r.loop == nil {
		return ErrNotAsync
	}
	if r.closed.Load() {
		return ErrClosed
	}
	return r.loop.start(ctx)
}

func (l *renderLoop) start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrStarted
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.started = true
	l.active.Store(true)
	go l.run(ctx)
	l.r.log.Info("mana: render goroutine started")
	return nil
}

func (l *renderLoop) running() bool {
	return l.active.Load()
}

func (l *renderLoop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	l.cancel()
	<-l.done
}

func (l *renderLoop) run(ctx context.Context) {
	defer close(l.done)
	defer l.active.Store(false)

	poll := time.NewTicker(resetPollInterval)
	defer poll.Stop()

	r := l.r
	for {
		// Only poll while a reset is pending.
		var retry <-chan time.Time
		if r.IsDeviceLost() {
			retry = poll.C
		}

		select {
		case <-ctx.Done():
			r.log.Info("mana: render goroutine stopped", slog.Any("cause", context.Cause(ctx)))
			return
		case <-r.queue.Notify():
			// Commands wait in the queue while the device is being reset.
			if !r.IsDeviceLost() {
				r.queue.Drain(r.exec.Execute)
			}
		case reply := <-l.requests:
			st := r.step()
			if reply != nil {
				reply <- st
			}
		case <-retry:
			r.tick()
		}
	}
}

// render schedules a frame and, if wait is true, returns its status.
func (l *renderLoop) render(wait bool) Status {
	var reply chan Status
	if wait {
		reply = make(chan Status, 1)
	}
	select {
	case l.requests <- reply:
	default:
		if !wait {
			// A frame is already scheduled.
			return StatusInProgress
		}
		select {
		case l.requests <- reply:
		case <-l.done:
			return StatusInProgress
		}
	}
	if !wait {
		return StatusInProgress
	}
	select {
	case st := <-reply:
		return st
	case <-l.done:
		return StatusInProgress
	}
}
