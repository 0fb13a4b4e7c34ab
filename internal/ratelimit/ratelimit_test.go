package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// TestNew_ValidatesConfiguration tests construction-time validation
func TestNew_ValidatesConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		source  domain.SourceID
		cfg     domain.RateLimitSettings
		wantErr error
	}{
		{
			name:    "valid configuration",
			source:  domain.SourceCongress,
			cfg:     domain.RateLimitSettings{MaxRequests: 10, Window: domain.Duration(time.Second)},
			wantErr: nil,
		},
		{
			name:    "zero max requests",
			source:  domain.SourceCongress,
			cfg:     domain.RateLimitSettings{MaxRequests: 0, Window: domain.Duration(time.Second)},
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "negative window",
			source:  domain.SourceLDA,
			cfg:     domain.RateLimitSettings{MaxRequests: 10, Window: domain.Duration(-time.Second)},
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "unknown source",
			source:  "fec",
			cfg:     domain.RateLimitSettings{MaxRequests: 10, Window: domain.Duration(time.Second)},
			wantErr: domain.ErrSourceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := New(tt.source, tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, limiter)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, limiter)
			}
		})
	}
}

// TestLimiter_Acquire_WithinBudget tests that a full window's worth of
// acquisitions completes without blocking on the window
func TestLimiter_Acquire_WithinBudget(t *testing.T) {
	limiter, err := New(domain.SourceCongress, domain.RateLimitSettings{
		MaxRequests: 5,
		Window:      domain.Duration(200 * time.Millisecond),
	})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}

	// The smoothing bucket spreads these out, but all five must land
	// inside roughly one window.
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, uint64(5), limiter.Stats().TotalAcquired)
}

// TestLimiter_Acquire_BlocksWhenWindowFull tests that the next acquisition
// waits for the oldest request to leave the window
func TestLimiter_Acquire_BlocksWhenWindowFull(t *testing.T) {
	window := 150 * time.Millisecond
	limiter, err := New(domain.SourceCongress, domain.RateLimitSettings{
		MaxRequests: 2,
		Window:      domain.Duration(window),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, limiter.Acquire(ctx))
	require.NoError(t, limiter.Acquire(ctx))

	// Window is now full: the third acquisition must wait for the first
	// slot to expire.
	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	stats := limiter.Stats()
	assert.Equal(t, uint64(3), stats.TotalAcquired)
	assert.Greater(t, stats.TotalWaited, time.Duration(0))
}

// TestLimiter_Acquire_CancelledWhileBlocked tests that cancellation during a
// wait returns promptly without consuming a slot
func TestLimiter_Acquire_CancelledWhileBlocked(t *testing.T) {
	limiter, err := New(domain.SourceCongress, domain.RateLimitSettings{
		MaxRequests: 1,
		Window:      domain.Duration(10 * time.Second),
	})
	require.NoError(t, err)

	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), limiter.Stats().TotalAcquired)
}

// TestLimiter_SlidingWindowProperty tests that no window-length interval
// ever contains more than the budgeted number of acquisitions
func TestLimiter_SlidingWindowProperty(t *testing.T) {
	const (
		maxRequests = 3
		total       = 9
	)
	window := 120 * time.Millisecond

	limiter, err := New(domain.SourceCongress, domain.RateLimitSettings{
		MaxRequests: maxRequests,
		Window:      domain.Duration(window),
	})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, limiter.Acquire(context.Background()))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, total)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	// Any maxRequests+1 consecutive acquisitions must span at least one
	// window. Allow a little scheduling skew between the limiter's clock
	// reading and ours.
	const skew = 15 * time.Millisecond
	for i := 0; i+maxRequests < len(times); i++ {
		span := times[i+maxRequests].Sub(times[i])
		assert.GreaterOrEqual(t, span, window-skew,
			"acquisitions %d..%d landed within one window", i, i+maxRequests)
	}
}

// TestLimiter_RecordRetryAfter tests the server-imposed cool-down
func TestLimiter_RecordRetryAfter(t *testing.T) {
	limiter, err := New(domain.SourceLDA, domain.RateLimitSettings{
		MaxRequests: 100,
		Window:      domain.Duration(time.Second),
	})
	require.NoError(t, err)

	limiter.RecordRetryAfter(80 * time.Millisecond)

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 1, limiter.Stats().CoolDowns)
}

// TestLimiter_RecordRetryAfter_Default tests the fallback cool-down when the
// response carried no Retry-After value
func TestLimiter_RecordRetryAfter_Default(t *testing.T) {
	limiter, err := New(domain.SourceLDA, domain.RateLimitSettings{
		MaxRequests: 100,
		Window:      domain.Duration(time.Second),
	})
	require.NoError(t, err)

	limiter.RecordRetryAfter(0)

	until := limiter.Stats().CoolDownUntil
	require.False(t, until.IsZero())
	remaining := time.Until(until)
	assert.Greater(t, remaining, 50*time.Second)
	assert.LessOrEqual(t, remaining, DefaultCoolDown)
}

// TestLimiter_RecordRetryAfter_KeepsLaterDeadline tests that a shorter
// cool-down cannot shrink an existing one
func TestLimiter_RecordRetryAfter_KeepsLaterDeadline(t *testing.T) {
	limiter, err := New(domain.SourceLDA, domain.RateLimitSettings{
		MaxRequests: 100,
		Window:      domain.Duration(time.Second),
	})
	require.NoError(t, err)

	limiter.RecordRetryAfter(10 * time.Second)
	first := limiter.Stats().CoolDownUntil

	limiter.RecordRetryAfter(1 * time.Second)
	second := limiter.Stats().CoolDownUntil

	assert.Equal(t, first, second)
	assert.Equal(t, 2, limiter.Stats().CoolDowns)
}

// TestLimiter_Allow tests the non-blocking path
func TestLimiter_Allow(t *testing.T) {
	limiter, err := New(domain.SourceCongress, domain.RateLimitSettings{
		MaxRequests: 1,
		Window:      domain.Duration(10 * time.Second),
	})
	require.NoError(t, err)

	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow(), "window is full")

	limiter.RecordRetryAfter(time.Minute)
	assert.False(t, limiter.Allow(), "cool-down is in force")
}

// TestRegistry tests per-source limiter sharing
func TestRegistry(t *testing.T) {
	settings := domain.DefaultSettings(t.TempDir())
	registry, err := NewRegistry(settings)
	require.NoError(t, err)

	congress, err := registry.For(domain.SourceCongress)
	require.NoError(t, err)
	again, err := registry.For(domain.SourceCongress)
	require.NoError(t, err)
	assert.Same(t, congress, again, "workers must share one limiter per source")

	lda, err := registry.For(domain.SourceLDA)
	require.NoError(t, err)
	assert.NotSame(t, congress, lda)

	_, err = registry.For("fec")
	assert.ErrorIs(t, err, domain.ErrSourceUnknown)

	stats := registry.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, domain.SourceCongress, stats[0].Source)
	assert.Equal(t, domain.SourceLDA, stats[1].Source)
}

// TestRegistry_InvalidSettings tests that a bad budget fails registry
// construction
func TestRegistry_InvalidSettings(t *testing.T) {
	settings := domain.DefaultSettings(t.TempDir())
	settings.LDA.RateLimit.MaxRequests = 0

	_, err := NewRegistry(settings)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
