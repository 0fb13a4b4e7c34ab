package connectors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/logger"
	"github.com/civica-labs/legisync-cli/internal/monitoring"
	"github.com/civica-labs/legisync-cli/internal/ratelimit"
)

// RetryPolicy bounds how persistently a request is retried before its
// failure becomes terminal.
type RetryPolicy struct {
	// MaxRateLimitAttempts is how many throttled responses are tolerated
	// before giving up with domain.ErrRateExceeded.
	MaxRateLimitAttempts int

	// MaxTransientAttempts is how many transient failures (5xx,
	// transport errors, undecodable bodies) are tolerated before giving
	// up with domain.ErrUpstreamUnavailable.
	MaxTransientAttempts int

	// BaseDelay is the first transient backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps the transient backoff delay.
	MaxDelay time.Duration

	// Jitter randomises each delay by up to this fraction either way.
	Jitter float64
}

// DefaultRetryPolicy returns the policy both connectors ship with.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRateLimitAttempts: 5,
		MaxTransientAttempts: 4,
		BaseDelay:            time.Second,
		MaxDelay:             60 * time.Second,
		Jitter:               0.2,
	}
}

// backoff returns the delay before the given transient attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		factor := 1 + p.Jitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// Do runs attempt until it succeeds or fails terminally. Every attempt
// first acquires a slot from the source's shared limiter, so retries count
// against the window like any other request.
//
// Throttled responses record a cool-down on the limiter and are retried up
// to the throttle budget; the cool-down makes the next Acquire the wait
// point, so every worker on the source backs off together. Transient
// failures sleep an exponential backoff with jitter. Anything else the
// upstream rejects is terminal immediately. The returned error is nil, a
// context error, or one of the terminal domain sentinels wrapping the
// underlying cause.
func Do(ctx context.Context, limiter *ratelimit.Limiter, policy RetryPolicy, op string, attempt func(context.Context) error) error {
	rateAttempts := 0
	transientAttempts := 0

	source := string(limiter.Source())

	for {
		waitStart := time.Now()
		if err := limiter.Acquire(ctx); err != nil {
			return err
		}
		monitoring.ObserveThrottleWait(source, time.Since(waitStart))
		monitoring.IncRequest(source)

		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if domain.IsTerminal(err) {
			// The attempt pre-classified its own failure.
			return err
		}

		switch {
		case IsThrottled(err):
			rateAttempts++
			monitoring.IncRetry(source, "throttled")
			var apiErr *APIError
			errors.As(err, &apiErr)
			limiter.RecordRetryAfter(apiErr.RetryAfter)
			if rateAttempts >= policy.MaxRateLimitAttempts {
				return fmt.Errorf("%s: throttled %d times: %w", op, rateAttempts, domain.ErrRateExceeded)
			}
			logger.Debug("%s: throttled by upstream, cooling down (attempt %d/%d)", op, rateAttempts, policy.MaxRateLimitAttempts)

		case isInvalidRequest(err):
			return fmt.Errorf("%s: %v: %w", op, err, domain.ErrInvalidRequest)

		default:
			// Server errors, transport failures, and undecodable
			// bodies all land here.
			transientAttempts++
			monitoring.IncRetry(source, "transient")
			if transientAttempts >= policy.MaxTransientAttempts {
				return fmt.Errorf("%s: %v: %w", op, err, domain.ErrUpstreamUnavailable)
			}
			delay := policy.backoff(transientAttempts)
			logger.Debug("%s: transient failure, retrying in %s (attempt %d/%d): %v", op, delay.Round(time.Millisecond), transientAttempts, policy.MaxTransientAttempts, err)
			if serr := sleep(ctx, delay); serr != nil {
				return serr
			}
		}
	}
}

// isInvalidRequest reports whether the upstream rejected the request in a
// way retrying cannot fix: any 4xx other than 429.
func isInvalidRequest(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && !IsThrottled(err)
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
