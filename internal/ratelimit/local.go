package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultLocalCacheSize = 10000
	defaultLocalIdleTTL   = 10 * time.Minute
)

// LocalLimiter is an in-process token bucket per key. Buckets live in an
// expiring LRU so idle callers are forgotten.
type LocalLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex // guards lookup-then-insert on buckets
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewLocalLimiter allows perMinute requests per key, refilled evenly, with
// the full minute available as burst.
func NewLocalLimiter(perMinute int) (*LocalLimiter, error) {
	if perMinute <= 0 {
		return nil, errors.New("rate limiter requires a positive limit")
	}
	return &LocalLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		buckets: expirable.NewLRU[string, *rate.Limiter](defaultLocalCacheSize, nil, defaultLocalIdleTTL),
	}, nil
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets.Add(key, b)
	return b
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	if key == "" {
		key = "unknown"
	}
	reservation := l.bucket(key).Reserve()
	if !reservation.OK() {
		return false, time.Minute
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}
