package embed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/tactimerge/internal/cache"
	"github.com/ppiankov/tactimerge/internal/vecmath"
	"github.com/ppiankov/tactimerge/internal/worker"
)

// Resilient bounds a remote embedder: each attempt waits for the backend's rate
// limit, runs under the attempt timeout and is retried only when transient.
type Resilient struct {
	inner   Embedder
	limiter *worker.Limiter
	retry   worker.RetryOpts
	logger  *slog.Logger
}

// NewResilient wraps inner. A nil limiter disables rate limiting.
func NewResilient(inner Embedder, limiter *worker.Limiter, retry worker.RetryOpts, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{inner: inner, limiter: limiter, retry: retry, logger: logger}
}

// Dimensions implements Embedder.
func (r *Resilient) Dimensions() int { return r.inner.Dimensions() }

// ID implements Embedder.
func (r *Resilient) ID() string { return r.inner.ID() }

// Embed implements Embedder.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	backend := strings.SplitN(r.inner.ID(), "/", 2)[0]
	start := time.Now()
	v, err := worker.Retry(ctx, r.retry, "embed", func(ctx context.Context) ([]float32, error) {
		if err := r.limiter.Wait(ctx, backend); err != nil {
			return nil, err
		}
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		r.logger.Warn("embedding failed", "embedder", r.inner.ID(), "duration", time.Since(start), "error", err)
		return nil, err
	}
	return v, nil
}

// Cached serves repeated texts from a cache keyed by embedder identity.
type Cached struct {
	inner Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps inner with c. A zero ttl uses the cache default.
func NewCached(inner Embedder, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: c, ttl: ttl}
}

// Dimensions implements Embedder.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// ID implements Embedder.
func (c *Cached) ID() string { return c.inner.ID() }

// Embed implements Embedder. Cache failures never fail the call.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(c.inner.ID(), text)
	if b, ok := c.cache.Get(key); ok {
		if v, err := vecmath.Decode(b); err == nil && len(v) == c.inner.Dimensions() {
			return v, nil
		}
		_ = c.cache.Delete(key)
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(key, vecmath.Encode(v), c.ttl)
	return v, nil
}
