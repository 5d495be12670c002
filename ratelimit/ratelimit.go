// Package ratelimit spaces out requests per key (usually a host name).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultKey is used when Acquire is called with an empty key.
const DefaultKey = "default"

// Limiter hands out at most one permit per interval for every key.
type Limiter struct {
	limit rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a limiter allowing requestsPerMinute requests per key. A
// non-positive rate disables limiting.
func New(requestsPerMinute float64) *Limiter {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / requestsPerMinute))
	}

	return &Limiter{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Interval returns the minimum spacing between two permits for one key.
func (l *Limiter) Interval() time.Duration {
	if l.limit == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Acquire blocks until a request for key may proceed or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	return l.forKey(key).Wait(ctx)
}

func (l *Limiter) forKey(key string) *rate.Limiter {
	if key == "" {
		key = DefaultKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, 1)
		l.limiters[key] = lim
	}
	return lim
}
