// Package ratelimit throttles outbound listing and probe requests. The
// crawl targets a single remote host, so one token bucket covers all
// traffic, with an optional minimum gap between consecutive requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests against the gallery host.
type Limiter struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	minDelay time.Duration
	last     time.Time
}

// New creates a limiter allowing requestsPerSecond with the given burst.
// A non-positive rate yields an unlimited limiter.
func New(requestsPerSecond float64, burst int) *Limiter {
	lim := rate.Inf
	if requestsPerSecond > 0 {
		lim = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(lim, burst)}
}

// Wait blocks until the next request is allowed or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.waitDelay(ctx); err != nil {
		return err
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) waitDelay(ctx context.Context) error {
	l.mu.Lock()
	if l.minDelay <= 0 {
		l.last = time.Now()
		l.mu.Unlock()
		return nil
	}
	gap := l.minDelay - time.Since(l.last)
	l.last = time.Now().Add(gap)
	l.mu.Unlock()

	if gap <= 0 {
		return nil
	}
	select {
	case <-time.After(gap):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Allow reports whether a request may proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetMinDelay sets the minimum gap between consecutive requests, on top of
// the token bucket.
func (l *Limiter) SetMinDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minDelay = d
}

// SetRate updates the request rate and burst.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	if requestsPerSecond > 0 {
		l.limiter.SetLimit(rate.Limit(requestsPerSecond))
	} else {
		l.limiter.SetLimit(rate.Inf)
	}
	if burst >= 1 {
		l.limiter.SetBurst(burst)
	}
}
