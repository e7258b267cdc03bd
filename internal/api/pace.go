package api

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum interval between successive API calls. The
// interval is measured from when the previous call returned, so a slow
// response pushes the next call out rather than overlapping it.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewPacer creates a pacer with the given minimum interval between calls.
// A zero or negative interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		now:      time.Now,
	}
}

// NextAllowedAt returns the earliest time the next call may start.
// Before any call has been marked it returns the zero time.
func (p *Pacer) NextAllowedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last.IsZero() || p.interval <= 0 {
		return time.Time{}
	}
	return p.last.Add(p.interval)
}

// Wait blocks until the next call is allowed or the context is done.
// The first call never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	var wait time.Duration
	if !p.last.IsZero() && p.interval > 0 {
		wait = p.interval - p.now().Sub(p.last)
	}
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Mark records that a call just returned, restarting the interval.
func (p *Pacer) Mark() {
	p.mu.Lock()
	p.last = p.now()
	p.mu.Unlock()
}
