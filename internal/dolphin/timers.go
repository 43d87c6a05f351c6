package dolphin

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// timer mirrors the semantics of an RTOS software timer: Reset restarts the
// countdown with the current period, ChangePeriod replaces the period and
// restarts, and an auto-reload timer re-arms itself before each callback.
// Callbacks run on the clock's goroutine and must only enqueue events.
type timer struct {
	clock    clockwork.Clock
	name     string
	periodic bool
	fire     func()

	mu        sync.Mutex
	period    time.Duration
	t         clockwork.Timer
	gen       uint64
	active    bool
	expiresAt time.Time
}

func newTimer(clock clockwork.Clock, name string, period time.Duration, periodic bool, fire func()) *timer {
	return &timer{
		clock:    clock,
		name:     name,
		period:   period,
		periodic: periodic,
		fire:     fire,
	}
}

// Reset (re)starts the timer with its current period.
func (t *timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armLocked()
}

// ChangePeriod sets a new period and restarts the timer from now.
func (t *timer) ChangePeriod(period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = period
	t.armLocked()
}

// Stop disarms the timer. A callback already running is not interrupted.
func (t *timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.active = false
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// ExpiresAt returns the next expiry and whether the timer is armed.
func (t *timer) ExpiresAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiresAt, t.active
}

// Period returns the current period.
func (t *timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

func (t *timer) armLocked() {
	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	gen := t.gen
	t.active = true
	t.expiresAt = t.clock.Now().Add(t.period)
	t.t = t.clock.AfterFunc(t.period, func() { t.expire(gen) })
}

func (t *timer) expire(gen uint64) {
	t.mu.Lock()
	// A Reset or Stop raced with this expiry; the newer arming wins.
	if gen != t.gen || !t.active {
		t.mu.Unlock()
		return
	}
	if t.periodic {
		t.armLocked()
	} else {
		t.active = false
		t.t = nil
	}
	t.mu.Unlock()

	t.fire()
}

// NextClearLimitsDelay returns the time from now until the next clear
// boundary at hour:00 local time. Before the boundary hour the delay targets
// today's boundary, otherwise tomorrow's. The result is always positive.
func NextClearLimitsDelay(now time.Time, hour int) time.Duration {
	sinceMidnight := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second
	if now.Hour() < hour {
		return time.Duration(hour)*time.Hour - sinceMidnight
	}
	return time.Duration(24+hour)*time.Hour - sinceMidnight
}
