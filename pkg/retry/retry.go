package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plugmeter/plugmeter/pkg/log"
)

// Policy bounds how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Base is doubled for every failed attempt.
	Base time.Duration
	// Cap is the longest wait between attempts.
	Cap time.Duration
	// Timeout bounds each attempt, zero means no per-attempt limit.
	Timeout time.Duration
}

// PersistPolicy is used for writes to the reading store.
var PersistPolicy = Policy{
	Attempts: 3,
	Base:     time.Second,
	Cap:      5 * time.Second,
	Timeout:  8 * time.Second,
}

// Backoff returns the wait after the n-th failed attempt, n starting at 1.
func (p Policy) Backoff(n int) time.Duration {
	d := p.Base
	for i := 0; i < n && d < p.Cap; i++ {
		d *= 2
	}
	return min(d, p.Cap)
}

// sleep is swapped out in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds or the policy's attempts are used up. It
// returns the last error wrapped with the number of attempts made.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(1, p.Attempts)
	var err error
	for n := 1; n <= attempts; n++ {
		err = attempt(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if n == attempts {
			break
		}
		wait := p.Backoff(n)
		log.Ctx(ctx).WarnContext(ctx, "attempt failed, retrying",
			slog.Int("attempt", n),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
		if serr := sleep(ctx, wait); serr != nil {
			return fmt.Errorf("gave up after %d attempts: %w", n, err)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
