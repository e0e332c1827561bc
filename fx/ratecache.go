package fx

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long a resolved provider rate is served without a new
// upstream fetch.
const DefaultTTL = 10 * time.Minute

// Resolver is what rate consumers depend on.
type Resolver interface {
	Resolve(ctx context.Context) (Rate, error)
}

type inflightCall struct {
	done chan struct{}
	rate Rate
	err  error
}

// RateCache resolves the USD->EUR rate through a fallback chain and caches
// the result for a TTL. Concurrent cold-cache callers coalesce onto a single
// upstream fetch; callers that joined a failed fetch continue down their own
// fallback chains.
type RateCache struct {
	mu       sync.Mutex
	value    Rate
	expiry   time.Time
	inflight *inflightCall

	ttl      time.Duration
	fetchers []Fetcher
}

// NewRateCache builds a cache over the given fallback chain, attempted in
// order. A nil fetcher is skipped. The fixed default rate is always the
// implicit last stage.
func NewRateCache(ttl time.Duration, fetchers ...Fetcher) *RateCache {
	chain := make([]Fetcher, 0, len(fetchers))
	for _, f := range fetchers {
		if f != nil {
			chain = append(chain, f)
		}
	}
	return &RateCache{ttl: ttl, fetchers: chain}
}

// NewDefaultRateCache wires the production chain: provider, internal mirror,
// fixed default.
func NewDefaultRateCache() *RateCache {
	return NewRateCache(DefaultTTL, NewProviderFetcher(), NewMirrorFetcher())
}

// Resolve returns the cached rate inside the TTL window, otherwise resolves
// through the chain. It never fails: the fixed default rate terminates the
// chain.
func (c *RateCache) Resolve(ctx context.Context) (Rate, error) {
	c.mu.Lock()
	if time.Now().Before(c.expiry) {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}

	if c.inflight != nil {
		call := c.inflight
		c.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return Rate{}, ctx.Err()
		}
		if call.err == nil {
			return call.rate, nil
		}
		// The owning call failed outright; fall through our own chain.
		return c.resolveChain(ctx)
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	rate, err := c.resolveChain(ctx)
	call.rate, call.err = rate, err
	close(call.done)

	c.mu.Lock()
	c.inflight = nil
	if err == nil && !rate.IsDefault() {
		// The default rate is not cached so a recovering provider is picked
		// up on the next resolution.
		c.value = rate
		c.expiry = time.Now().Add(c.ttl)
	}
	c.mu.Unlock()

	return rate, err
}

func (c *RateCache) resolveChain(ctx context.Context) (Rate, error) {
	logger := config.GetLogger()
	for i, fetcher := range c.fetchers {
		rate, err := fetcher.Fetch(ctx)
		if err == nil {
			return rate, nil
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"module": "fx",
				"stage":  i,
			}).Warn("fx fetch failed, trying next stage: " + err.Error())
		}
		if ctx.Err() != nil {
			return Rate{}, ctx.Err()
		}
	}
	return Fallback(), nil
}
