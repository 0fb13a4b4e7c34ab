// Package ratelimit enforces per-source request budgets for upstream APIs.
//
// Each source gets one Limiter shared by every worker fetching from it. The
// Limiter combines three strategies:
//
//   - A sliding window guaranteeing at most MaxRequests request starts
//     within any interval of length Window. This is the hard bound.
//   - A token bucket that spreads requests across the window instead of
//     letting workers burn the whole budget in the first seconds.
//   - A server-imposed cool-down honouring Retry-After responses, so a
//     throttled source is left alone until the upstream says otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

const (
	// DefaultCoolDown applies when a throttled response carries no
	// Retry-After value.
	DefaultCoolDown = 60 * time.Second

	// maxBurst caps the token bucket burst regardless of window size.
	maxBurst = 10
)

// Limiter bounds request volume against one source.
type Limiter struct {
	mu sync.Mutex

	source  domain.SourceID
	max     int
	window  time.Duration
	starts  []time.Time   // request start times within the window, oldest first
	retryAt time.Time     // server-imposed cool-down deadline
	bucket  *rate.Limiter // smoothing

	totalAcquired uint64
	totalWaited   time.Duration
	coolDowns     int
}

// Stats is a point-in-time snapshot of a limiter's state.
type Stats struct {
	// Source is the upstream this limiter guards.
	Source domain.SourceID

	// MaxRequests is the configured budget per window.
	MaxRequests int

	// Window is the configured window length.
	Window time.Duration

	// InWindow is how many requests started within the current window.
	InWindow int

	// TotalAcquired counts successful acquisitions since construction.
	TotalAcquired uint64

	// TotalWaited is the cumulative time callers spent blocked.
	TotalWaited time.Duration

	// CoolDownUntil is the active server-imposed cool-down deadline,
	// zero when none is in force.
	CoolDownUntil time.Time

	// CoolDowns counts throttled responses recorded since construction.
	CoolDowns int
}

// New creates a limiter for source from its configured budget. The
// configuration is validated here so an unenforceable limit fails at
// construction rather than surfacing mid-run.
func New(source domain.SourceID, cfg domain.RateLimitSettings) (*Limiter, error) {
	if !source.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrSourceUnknown, source)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("limiter for %s: %w", source, err)
	}

	burst := cfg.MaxRequests / 10
	if burst < 1 {
		burst = 1
	}
	if burst > maxBurst {
		burst = maxBurst
	}
	window := time.Duration(cfg.Window)
	perSecond := float64(cfg.MaxRequests) / window.Seconds()

	return &Limiter{
		source: source,
		max:    cfg.MaxRequests,
		window: window,
		starts: make([]time.Time, 0, cfg.MaxRequests),
		bucket: rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

// Acquire blocks until starting a request would keep the source within its
// budget, then records the request start. It returns early with the context
// error when ctx is cancelled; cancellation while blocked does not consume
// a slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	began := time.Now()

	// Smoothing first, so a fresh window is not consumed in one burst. A
	// reservation plus our own sleep keeps cancellation errors as plain
	// context errors.
	reservation := l.bucket.Reserve()
	if err := sleep(ctx, reservation.Delay()); err != nil {
		reservation.Cancel()
		return err
	}

	for {
		l.mu.Lock()
		now := time.Now()

		if now.Before(l.retryAt) {
			wait := l.retryAt.Sub(now)
			l.mu.Unlock()
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		l.prune(now)
		if len(l.starts) < l.max {
			l.starts = append(l.starts, now)
			l.totalAcquired++
			l.totalWaited += now.Sub(began)
			l.mu.Unlock()
			return nil
		}

		// Window is full. The next slot opens when the oldest request
		// leaves the window.
		wait := l.starts[0].Add(l.window).Sub(now)
		l.mu.Unlock()
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Allow reports whether a request could start immediately, consuming a slot
// if so. It never blocks.
func (l *Limiter) Allow() bool {
	if !l.bucket.Allow() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Before(l.retryAt) {
		return false
	}
	l.prune(now)
	if len(l.starts) >= l.max {
		return false
	}
	l.starts = append(l.starts, now)
	l.totalAcquired++
	return true
}

// RecordRetryAfter imposes a cool-down after a throttled response. Call this
// with the parsed Retry-After duration; non-positive values apply
// DefaultCoolDown. An existing later deadline is kept.
func (l *Limiter) RecordRetryAfter(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultCoolDown
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Now().Add(retryAfter)
	if deadline.After(l.retryAt) {
		l.retryAt = deadline
	}
	l.coolDowns++
}

// Source returns the upstream this limiter guards.
func (l *Limiter) Source() domain.SourceID {
	return l.source
}

// Stats returns a snapshot of the limiter's state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	s := Stats{
		Source:        l.source,
		MaxRequests:   l.max,
		Window:        l.window,
		InWindow:      len(l.starts),
		TotalAcquired: l.totalAcquired,
		TotalWaited:   l.totalWaited,
		CoolDowns:     l.coolDowns,
	}
	if now.Before(l.retryAt) {
		s.CoolDownUntil = l.retryAt
	}
	return s
}

// prune drops request starts that have left the window. Callers must hold
// the mutex.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.starts = append(l.starts[:0], l.starts[i:]...)
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
