// Package ratelimit throttles outbound requests per upstream host with a
// token bucket per key.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Keyed manages one token bucket per key (typically a host name).
type Keyed struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a keyed limiter allowing rps requests per second with the given
// burst per key. A non-positive rps disables throttling.
func New(rps float64, burst int) *Keyed {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a request for key is allowed or ctx is done.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	if k == nil {
		return nil
	}
	return k.limiter(key).Wait(ctx)
}

// WaitURL throttles on the host of rawURL.
func (k *Keyed) WaitURL(ctx context.Context, rawURL string) error {
	key := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		key = parsed.Host
	}
	return k.Wait(ctx, key)
}

func (k *Keyed) limiter(key string) *rate.Limiter {
	k.mu.RLock()
	limiter, ok := k.limiters[key]
	k.mu.RUnlock()
	if ok {
		return limiter
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if limiter, ok = k.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(k.limit, k.burst)
	k.limiters[key] = limiter
	return limiter
}
