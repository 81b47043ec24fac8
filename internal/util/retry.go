package util

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Poll calls fn every interval until it succeeds, returns an error that
// retryIf rejects, or timeout elapses. A zero timeout polls until ctx is done.
// On timeout the last error seen is returned along with the context error.
func Poll(ctx context.Context, interval, timeout time.Duration, retryIf func(error) bool, fn func() error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if interval <= 0 {
		interval = time.Second
	}
	opts := []retry.Option{
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.WrapContextErrorWithLastError(true),
		retry.Context(ctx),
	}
	if retryIf != nil {
		opts = append(opts, retry.RetryIf(retryIf))
	}
	return retry.Do(fn, opts...)
}

// Backoff is a capped doubling delay. The zero value never waits.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	current time.Duration
}

// Wait sleeps for the current delay, then doubles it up to Max. It returns
// false if ctx was cancelled first.
func (b *Backoff) Wait(ctx context.Context) bool {
	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current
	if b.Max > 0 {
		b.current = minDuration(b.current*2, b.Max)
	} else {
		b.current *= 2
	}
	return wait(ctx, d)
}

// Reset restores the initial delay after a successful attempt.
func (b *Backoff) Reset() {
	b.current = b.Initial
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
