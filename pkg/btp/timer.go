package btp

import (
	"sync"
	"time"
)

// timer is the capability the design notes call for: start, stop,
// isRunning, and a callback — never a raw sleep-loop. This is what makes
// Engine trivially testable against a fake clock.
type timer interface {
	start(d time.Duration, fn func())
	stop()
	isRunning() bool
}

// realTimer is a timer backed by time.AfterFunc, the same primitive the
// exchange layer's per-entry ack timeout is built on.
type realTimer struct {
	mu      sync.Mutex
	t       *time.Timer
	running bool
}

func newRealTimer() *realTimer {
	return &realTimer{}
}

func (r *realTimer) start(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.running = true
	r.t = time.AfterFunc(d, func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		fn()
	})
}

func (r *realTimer) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.running = false
}

func (r *realTimer) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
