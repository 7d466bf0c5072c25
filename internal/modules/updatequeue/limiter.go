package updatequeue

import "sync"

// Limiter caps how many broker calls can be in flight at once across all
// queues. Slots are taken with TryAcquire and must be given back with Release.
type Limiter struct {
	mu     sync.Mutex
	max    int
	active int
}

// NewLimiter creates a limiter with the given slot count. A max below one is
// clamped to one so the engine can always make progress.
func NewLimiter(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: max}
}

// TryAcquire takes a slot without blocking. It reports false when every slot
// is already in use.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active >= l.max {
		return false
	}
	l.active++
	return true
}

// Release returns a slot. Extra releases are ignored so a crashed worker that
// already lost its slot to Reset cannot drive the counter negative.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// Reset forces the in-flight count back to zero. Used by the operator escape
// hatch when the counter is believed to have leaked.
func (l *Limiter) Reset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.active
	l.active = 0
	return prev
}

// InFlight returns the number of slots currently in use.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Max returns the slot count.
func (l *Limiter) Max() int {
	return l.max
}
