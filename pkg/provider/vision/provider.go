// Package vision implements the provider interface for the public
// market-data archive: an anonymous S3-website listing endpoint speaking
// the V1 ListBucketResult wire format with marker pagination.
package vision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/datahaul/histvision/pkg/provider"
)

const providerName = "vision"

// Provider lists the archive over anonymous HTTP GET.
//
// Safe for concurrent use.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a vision provider. Zero-value config fields fall back to
// DefaultConfig.
func New(cfg Config) *Provider {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.DownloadPrefix == "" {
		cfg.DownloadPrefix = def.DownloadPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Policy.MaxRetries == 0 && cfg.Policy.Unit == 0 {
		cfg.Policy = def.Policy
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// DownloadPrefix returns the base URL listed objects are fetched from.
func (p *Provider) DownloadPrefix() string {
	return p.cfg.DownloadPrefix
}

// List fetches and parses one listing page.
//
// Transport failures (connection errors, timeouts, non-2xx) are retried
// under the configured policy with exponential backoff; exhaustion
// surfaces provider.ErrListingUnavailable. An unparsable page surfaces
// provider.ErrMalformedListing immediately without retry.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListingPage, error) {
	u := p.listURL(opts)

	var lastErr error
	for attempt := 0; attempt < p.cfg.Policy.Attempts(); attempt++ {
		if attempt > 0 {
			if err := p.cfg.Policy.Sleep(ctx, attempt-1); err != nil {
				return nil, p.wrap(opts.Prefix, err)
			}
		}

		raw, err := p.fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, p.wrap(opts.Prefix, ctx.Err())
			}
			lastErr = err
			continue
		}

		page, err := ParseListing(raw)
		if err != nil {
			// Structural failure: the same bytes come back on retry.
			return nil, p.wrap(opts.Prefix, err)
		}
		return page, nil
	}

	return nil, p.wrap(opts.Prefix, fmt.Errorf("%w after %d attempts: %v",
		provider.ErrListingUnavailable, p.cfg.Policy.Attempts(), lastErr))
}

// listURL builds the query URL for a page.
func (p *Provider) listURL(opts provider.ListOptions) string {
	q := url.Values{}
	q.Set("delimiter", "/")
	q.Set("prefix", opts.Prefix)
	if opts.Marker != "" {
		q.Set("marker", opts.Marker)
	}
	return p.cfg.BaseURL + "?" + q.Encode()
}

// fetch performs one GET, classifying failures as transport errors.
func (p *Provider) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", provider.ErrTransport, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	return raw, nil
}

func (p *Provider) wrap(prefix string, err error) error {
	return &provider.Error{Op: "List", Provider: providerName, Prefix: prefix, Err: err}
}
