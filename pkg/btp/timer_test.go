package btp

import "time"

// fakeTimer is a manually-driven timer for deterministic tests, per the
// design notes: expose a Timer capability so the session is testable
// against a fake clock instead of real sleeps.
type fakeTimer struct {
	running bool
	fn      func()
	dur     time.Duration
}

func (f *fakeTimer) start(d time.Duration, fn func()) {
	f.running = true
	f.dur = d
	f.fn = fn
}

func (f *fakeTimer) stop() {
	f.running = false
}

func (f *fakeTimer) isRunning() bool {
	return f.running
}

// fire invokes the callback as if the timer expired, only if running.
func (f *fakeTimer) fire() {
	if !f.running {
		return
	}
	f.running = false
	fn := f.fn
	fn()
}
