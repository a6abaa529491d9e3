// Package tree reconstructs directory hierarchies from paginated remote
// listings.
//
// The walker drives a provider across listing pages for one prefix,
// accumulating directories and objects in response order. The catalog
// helpers derive the archive's data types, intervals, and symbols from
// walks.
package tree

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datahaul/histvision/pkg/provider"
)

// PageObserver receives an advisory notification after each listing page:
// pages fetched so far and the running item count. Purely informational,
// never affects the walk.
type PageObserver func(pages, items int)

// Config configures walker behavior.
type Config struct {
	// MaxEmptyRetries is how many times a completely empty walk is
	// restarted before the empty result is accepted. The remote can
	// return a transient false-empty listing.
	// Default: 3
	MaxEmptyRetries int

	// RateLimit is the maximum listing requests per second.
	// Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns the default walker configuration.
func DefaultConfig() Config {
	return Config{MaxEmptyRetries: 3}
}

// Walker traverses one prefix of a remote listing across all pages.
type Walker struct {
	provider provider.Provider
	cfg      Config
	observer PageObserver
	logger   *zap.Logger

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter
}

// NewWalker creates a walker over the given provider.
func NewWalker(p provider.Provider, cfg Config) *Walker {
	if cfg.MaxEmptyRetries <= 0 {
		cfg.MaxEmptyRetries = DefaultConfig().MaxEmptyRetries
	}

	w := &Walker{
		provider: p,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return w
}

// WithObserver sets an optional per-page observer.
// Returns the walker for method chaining.
func (w *Walker) WithObserver(obs PageObserver) *Walker {
	w.observer = obs
	return w
}

// WithLogger sets the logger. Returns the walker for method chaining.
func (w *Walker) WithLogger(logger *zap.Logger) *Walker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Walk returns every directory prefix and object key under prefix, in
// provider response order. Callers must not assume lexicographic order.
//
// A walk that completes with zero results is treated as possibly
// transient and restarted up to MaxEmptyRetries times; a still-empty
// result is then returned as-is, not an error. Page fetch failures are
// retried inside the provider; exhaustion aborts the whole walk.
func (w *Walker) Walk(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	for attempt := 0; attempt <= w.cfg.MaxEmptyRetries; attempt++ {
		if attempt > 0 {
			w.logger.Warn("empty listing, restarting walk",
				zap.String("prefix", prefix),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", w.cfg.MaxEmptyRetries))
		}

		var err error
		keys, err = w.walkOnce(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			return keys, nil
		}
	}

	// Still empty after the retry budget: accept the empty result.
	return keys, nil
}

// walkOnce runs one full pagination pass over the prefix.
func (w *Walker) walkOnce(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var marker string
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		page, err := w.provider.List(ctx, provider.ListOptions{Prefix: prefix, Marker: marker})
		if err != nil {
			return nil, err
		}

		pages++
		keys = append(keys, page.Keys()...)
		if w.observer != nil {
			w.observer(pages, len(keys))
		}

		if !page.Truncated {
			return keys, nil
		}
		if page.NextMarker == "" {
			w.logger.Warn("truncated page without next marker, ending walk",
				zap.String("prefix", prefix),
				zap.Int("pages", pages))
			return keys, nil
		}
		marker = page.NextMarker
	}
}
