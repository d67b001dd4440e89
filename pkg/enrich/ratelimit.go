package enrich

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultRequestInterval is the outbound pacing used when none is
// configured.
const defaultRequestInterval = time.Second

// hostLimiter enforces a minimum spacing between outbound requests to the
// same host.
type hostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	limiters map[string]*rate.Limiter
}

func newHostLimiter(minInterval time.Duration) *hostLimiter {
	if minInterval <= 0 {
		minInterval = defaultRequestInterval
	}
	return &hostLimiter{
		limit:    rate.Every(minInterval),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.limit, 1)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
