// Package ratelimiter provides token bucket throttling for maintenance work.
//
// A sweep over a large pool can issue thousands of backend deletes in a tight
// loop. Throttling those operations keeps a sweep from saturating disk or S3
// request quotas while regular reads and writes are being served.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket limiter. Tokens refill at a sustained rate and
// each operation consumes one; burst capacity absorbs short spikes.
//
// Thread Safety: Safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing opsPerSecond sustained operations with the
// given burst capacity. An opsPerSecond of 0 means unlimited.
func New(opsPerSecond, burst uint) *Limiter {
	if opsPerSecond == 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = opsPerSecond
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(opsPerSecond), int(burst)),
	}
}

// Allow reports whether one operation may proceed right now, consuming a
// token if so. It never blocks.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Tokens returns the number of currently available tokens. Useful for
// debugging; the value can change immediately after the call.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}
