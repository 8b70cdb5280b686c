// Package ratelimit wraps in-memory token bucket stores keyed by client IP.
// Two buckets protect the gateway: a global one covering every API request
// and a much tighter one covering only the credential endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// Config sizes one bucket.
type Config struct {
	// Tokens is the number of requests allowed per interval per key.
	Tokens uint64

	// Interval is the window after which a key's bucket refills.
	Interval time.Duration
}

// Decision is the outcome of a Take.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration

	// Remaining is the number of requests left in the current window.
	Remaining uint64
}

// Limiter is a keyed token bucket.
type Limiter struct {
	store limiter.Store
}

// New builds a limiter with the given bucket size and window.
func New(cfg Config) (*Limiter, error) {
	if cfg.Tokens == 0 {
		return nil, fmt.Errorf("rate limit tokens must be positive")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("rate limit interval must be positive")
	}
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   cfg.Tokens,
		Interval: cfg.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating limiter store: %w", err)
	}
	return &Limiter{store: store}, nil
}

// Take consumes one token for the key, typically a client IP. When the bucket
// is empty the decision carries the time until the window resets.
func (l *Limiter) Take(ctx context.Context, key string) (*Decision, error) {
	_, remaining, reset, ok, err := l.store.Take(ctx, key)
	if err != nil {
		return nil, err
	}
	d := &Decision{Allowed: ok, Remaining: remaining}
	if !ok {
		retryAfter := time.Until(time.Unix(0, int64(reset)))
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		d.RetryAfter = retryAfter
	}
	return d, nil
}

// Close releases the limiter's background resources.
func (l *Limiter) Close(ctx context.Context) error {
	return l.store.Close(ctx)
}
