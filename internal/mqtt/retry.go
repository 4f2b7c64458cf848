package mqtt

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRetryInterval    = 5 * time.Second
	defaultRetryMaxInterval = 60 * time.Second
)

// RetryPolicy decides how long EnsureConnected waits between failed
// handshakes and when it gives up.
type RetryPolicy struct {
	// Exponential doubles the wait after every failure, up to MaxInterval.
	// Otherwise every wait is Interval.
	Exponential bool
	Interval    time.Duration
	MaxInterval time.Duration
	// MaxAttempts bounds the number of handshakes; 0 retries until the
	// context is cancelled.
	MaxAttempts uint64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Interval <= 0 {
		p.Interval = defaultRetryInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = max(defaultRetryMaxInterval, p.Interval)
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	p = p.withDefaults()

	var b backoff.BackOff
	if p.Exponential {
		e := backoff.NewExponentialBackOff()
		e.InitialInterval = p.Interval
		e.MaxInterval = p.MaxInterval
		e.Multiplier = 2
		e.RandomizationFactor = 0
		e.MaxElapsedTime = 0
		e.Reset()
		b = e
	} else {
		b = backoff.NewConstantBackOff(p.Interval)
	}

	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}
