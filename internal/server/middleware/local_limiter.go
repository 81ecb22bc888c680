package middleware

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// LocalLimiter is an in-process domain.RateLimiter for deployments without
// Redis. Each key gets a token bucket refilled at limit per window; idle
// buckets expire after a few windows.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets *gocache.Cache
}

// NewLocalLimiter creates a LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: gocache.New(10*time.Minute, time.Minute)}
}

// Allow reports whether one more request for key is allowed.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	l.mu.Lock()
	var lim *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	}
	l.buckets.Set(key, lim, 3*window)
	l.mu.Unlock()

	return lim.Allow(), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*LocalLimiter)(nil)
