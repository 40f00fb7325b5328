package mousai

import (
	"sync"
	"time"
)

// Timer fires a callback once after a duration, counting down in short
// ticks so it can be polled and cancelled with sub-second granularity.
// A Timer is single use.
type Timer struct {
	tick time.Duration

	mu       sync.Mutex
	started  bool
	finished bool // fired or cancelled
	deadline time.Time
	stop     chan struct{}
}

func NewTimer(tick time.Duration) *Timer {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Timer{tick: tick}
}

// Start schedules onFire after d. onFire runs on the timer's goroutine.
func (t *Timer) Start(d time.Duration, onFire func()) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrTimerUsed
	}
	t.started = true
	t.deadline = time.Now().Add(d)
	t.stop = make(chan struct{})
	t.mu.Unlock()

	go t.run(onFire)
	return nil
}

func (t *Timer) run(onFire func()) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if t.Remaining() > 0 {
				continue
			}
			t.mu.Lock()
			if t.finished {
				t.mu.Unlock()
				return
			}
			t.finished = true
			t.mu.Unlock()

			onFire()
			return
		}
	}
}

// Cancel prevents a pending fire. It reports whether the timer was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.finished {
		return false
	}
	t.finished = true
	close(t.stop)
	return true
}

// Remaining is the time left before firing; zero once fired or cancelled.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.finished {
		return 0
	}
	if left := time.Until(t.deadline); left > 0 {
		return left
	}
	return 0
}
