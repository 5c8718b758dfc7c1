// Package ratelimit implements the in-memory sign-in attempt ledger. It is a
// UX throttle, not a security boundary; real enforcement lives server-side.
package ratelimit

import (
	"sync"
	"time"

	"github.com/minghua-center/minghua/internal/clock"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
	DefaultMaxTracked  = 1000
)

// Ledger records sign-in attempts per normalized email over a sliding window.
// When the number of tracked emails exceeds the cap, the email whose most
// recent attempt is oldest gets evicted first.
type Ledger struct {
	clock       clock.Clock
	window      time.Duration
	maxAttempts int
	maxTracked  int

	mu       sync.Mutex
	attempts map[string][]time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithWindow(d time.Duration) Option {
	return func(l *Ledger) { l.window = d }
}

func WithMaxAttempts(n int) Option {
	return func(l *Ledger) { l.maxAttempts = n }
}

func WithMaxTracked(n int) Option {
	return func(l *Ledger) { l.maxTracked = n }
}

func NewLedger(clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		clock:       clk,
		window:      DefaultWindow,
		maxAttempts: DefaultMaxAttempts,
		maxTracked:  DefaultMaxTracked,
		attempts:    make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records an attempt for the email and reports whether it is within
// the allowed budget. The attempt is recorded even when the answer is no.
func (l *Ledger) Allow(email string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := pruneBefore(l.attempts[email], now.Add(-l.window))
	recent = append(recent, now)
	l.attempts[email] = recent
	l.evictLocked(now)

	return len(recent) <= l.maxAttempts
}

// Reset clears the ledger entry for an email after a successful sign-in.
func (l *Ledger) Reset(email string) {
	l.mu.Lock()
	delete(l.attempts, email)
	l.mu.Unlock()
}

// Prune drops attempts that fell out of the window and forgets empty entries.
func (l *Ledger) Prune() {
	cutoff := l.clock.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for email, times := range l.attempts {
		recent := pruneBefore(times, cutoff)
		if len(recent) == 0 {
			delete(l.attempts, email)
			continue
		}
		l.attempts[email] = recent
	}
}

// Tracked returns the number of emails currently held.
func (l *Ledger) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

func (l *Ledger) evictLocked(now time.Time) {
	for len(l.attempts) > l.maxTracked {
		oldestEmail := ""
		var oldestLast time.Time
		for email, times := range l.attempts {
			last := times[len(times)-1]
			if oldestEmail == "" || last.Before(oldestLast) {
				oldestEmail = email
				oldestLast = last
			}
		}
		delete(l.attempts, oldestEmail)
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return times
	}
	return append([]time.Time(nil), times[idx:]...)
}
