package engine

import (
	"sort"
	"sync"
	"time"
)

// TimeSource supplies engine time. Debounce windows are the only thing
// scheduled on it.
type TimeSource interface {
	Now() time.Time
	// AfterFunc runs f after d. The returned stop function cancels the call
	// and reports whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SystemTime is the wall-clock TimeSource.
type SystemTime struct{}

// Now returns time.Now().
func (SystemTime) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (SystemTime) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ManualTime is a TimeSource that only moves when Advance is called.
// Timers due at or before the new time fire synchronously inside Advance,
// in deadline order (ties in scheduling order).
//
// Replay and the scenario harness use it to reproduce debounce behaviour
// exactly.
type ManualTime struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*manualTimer
}

type manualTimer struct {
	id  int
	at  time.Time
	f   func()
	off bool
}

// NewManualTime creates a ManualTime starting at start.
func NewManualTime(start time.Time) *ManualTime {
	return &ManualTime{now: start}
}

// Now returns the current manual time.
func (m *ManualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f at Now()+d.
func (m *ManualTime) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t := &manualTimer{id: m.nextID, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)

	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.off {
			return false
		}
		t.off = true
		m.remove(t)
		return true
	}
}

// Advance moves time forward by d, firing due timers. Each timer runs with
// Now() set to its own deadline.
func (m *ManualTime) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.AdvanceTo(target)
}

// AdvanceTo moves time forward to t. Moving backwards is a no-op.
func (m *ManualTime) AdvanceTo(t time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDue(t)
		if next == nil {
			if t.After(m.now) {
				m.now = t
			}
			m.mu.Unlock()
			return
		}
		next.off = true
		m.remove(next)
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()

		// Fire outside the lock: callbacks may schedule new timers.
		next.f()
	}
}

// Pending returns the number of scheduled timers.
func (m *ManualTime) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *ManualTime) nextDue(limit time.Time) *manualTimer {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].id < m.timers[j].id
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(limit) {
		return nil
	}
	return m.timers[0]
}

func (m *ManualTime) remove(t *manualTimer) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}
