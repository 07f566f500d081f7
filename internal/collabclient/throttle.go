package collabclient

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Throttle runs fn at most once per interval with leading and trailing edges:
// the first call in a quiet period runs immediately, later calls inside the
// window collapse into one run at the end of it.
type Throttle struct {
	clk      clock.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	last    time.Time
	timer   *clock.Timer
	pending bool
	stopped bool
}

// NewThrottle Throttle 생성
func NewThrottle(clk clock.Clock, interval time.Duration, fn func()) *Throttle {
	return &Throttle{clk: clk, interval: interval, fn: fn}
}

// Call requests a run of fn.
func (t *Throttle) Call() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := t.clk.Now()
	if t.timer == nil && (t.last.IsZero() || now.Sub(t.last) >= t.interval) {
		t.last = now
		t.mu.Unlock()
		t.fn()
		return
	}

	t.pending = true
	if t.timer == nil {
		t.timer = t.clk.AfterFunc(t.interval-now.Sub(t.last), t.trailing)
	}
	t.mu.Unlock()
}

func (t *Throttle) trailing() {
	t.mu.Lock()
	t.timer = nil
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.last = t.clk.Now()
	t.mu.Unlock()

	t.fn()
}

// Stop cancels a pending trailing run. Later calls are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
