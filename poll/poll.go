// Package poll implements the bounded polling policy shared by every
// "wait until the relay or chain reports X" loop.
package poll

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultMaxAttempts = 20
	DefaultDelay       = 3 * time.Second
)

// Policy bounds a polling loop.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Default returns 20 attempts, 3 seconds apart.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// WithDefaults fills zero fields with the defaults.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	} else if p.Delay == 0 {
		p.Delay = DefaultDelay
	}
	return p
}

// Until runs query at most p.MaxAttempts times with p.Delay between
// consecutive attempts and no delay after the last one. It returns the value
// of the first successful attempt, or done=false once the budget is spent.
// The context only stops the loop early when it is cancelled.
func Until[T any](ctx context.Context, p Policy, name string, query func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, done, err := query(ctx)
		if err != nil {
			return zero, false, err
		}
		if done {
			return v, true, nil
		}
		log.Debug("Condition not met, polling again", "what", name, "attempt", attempt, "max", p.MaxAttempts)
		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return zero, false, err
		}
	}
	return zero, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
