// Package download implements the bounded-concurrency download manager:
// N-way parallel fetch of a file list with per-file retry/backoff and
// checksum-verified, re-fetch-on-mismatch semantics.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datahaul/histvision/pkg/retry"
)

// Observer receives batch progress notifications.
//
// completed == 0 signals an in-progress update for the item named by
// label; completed > 0 signals one item's terminal completion and
// carries the running completion count. Invoked synchronously; cheap
// implementations only.
type Observer func(completed, total int, label string)

// Config configures download behavior.
type Config struct {
	// Concurrency bounds simultaneously in-flight fetches.
	// Default: 5
	Concurrency int

	// VerifyChecksum pairs each payload with its companion checksum
	// file and verifies the SHA-256 digest.
	// Default: true (set by DefaultConfig)
	VerifyChecksum bool

	// Policy is the per-file retry/backoff policy, shared in shape
	// with listing fetches. Construct with retry.NewPolicy: only the
	// zero value is treated as unset, and retry.NewPolicy(0) is a
	// valid no-retry policy.
	Policy retry.Policy

	// RateLimit is the maximum requests per second across the batch.
	// Zero means unlimited.
	RateLimit float64

	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration
}

// DefaultConfig returns the default download configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:    5,
		VerifyChecksum: true,
		Policy:         retry.NewPolicy(retry.DefaultMaxRetries),
		Timeout:        30 * time.Second,
	}
}

// Summary contains aggregate statistics from a completed batch.
type Summary struct {
	// Total is the number of tasks dispatched (duplicates counted).
	Total int

	// Succeeded and Failed count terminal task outcomes.
	Succeeded int
	Failed    int

	// Bytes is the cumulative payload size fetched successfully.
	Bytes int64

	// Duration is the wall time of the batch.
	Duration time.Duration

	// FailedURLs lists every URL whose task failed, so a caller can
	// re-run with the same inputs to retry only the failures.
	FailedURLs []string
}

// Manager executes download batches. Safe for concurrent use; each
// DownloadAll call tracks its own batch state.
type Manager struct {
	cfg      Config
	client   *http.Client
	observer Observer
	logger   *zap.Logger

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter
}

// New creates a download manager. Zero values in cfg fall back to
// DefaultConfig, except VerifyChecksum which is honored as given.
func New(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Policy.MaxRetries == 0 && cfg.Policy.Unit == 0 {
		cfg.Policy = def.Policy
	}

	m := &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return m
}

// WithObserver sets an optional progress observer.
// Returns the manager for method chaining.
func (m *Manager) WithObserver(obs Observer) *Manager {
	m.observer = obs
	return m
}

// WithLogger sets the logger. Returns the manager for method chaining.
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// DownloadAll fetches every URL into destDir under its basename,
// creating directories as needed, and returns the per-URL success map
// plus a batch summary.
//
// At most Config.Concurrency fetches are in flight at once; completion
// order is unconstrained. One file's failure never aborts the batch.
// Duplicate URLs are dispatched as independent tasks; the result map
// collapses them to the last-completed outcome (Summary counts tasks).
// Cancellation is observed between queued tasks and between retries;
// tasks that never ran are recorded as failures.
func (m *Manager) DownloadAll(ctx context.Context, urls []string, destDir string) (map[string]bool, *Summary, error) {
	start := time.Now()
	total := len(urls)

	results := make(map[string]bool, total)
	summary := &Summary{Total: total}

	if total == 0 {
		return results, summary, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create destination dir: %w", err)
	}

	var (
		mu        sync.Mutex
		completed int
	)
	record := func(url string, err error) {
		mu.Lock()
		defer mu.Unlock()

		success := err == nil
		results[url] = success
		if success {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.FailedURLs = append(summary.FailedURLs, url)
			m.logger.Warn("download failed",
				zap.String("url", url),
				zap.Error(err))
		}

		completed++
		if m.observer != nil {
			m.observer(completed, total, url)
		}
	}

	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, url := range urls {
		// Admission gate: acquire a slot or observe cancellation.
		select {
		case <-ctx.Done():
			record(url, ctx.Err())
			continue
		case sem <- struct{}{}:
		}
		if err := ctx.Err(); err != nil {
			<-sem
			record(url, err)
			continue
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := m.downloadOne(ctx, url, destDir, total)
			if err == nil {
				mu.Lock()
				summary.Bytes += n
				mu.Unlock()
			}
			record(url, err)
		}(url)
	}

	wg.Wait()
	summary.Duration = time.Since(start)

	return results, summary, ctx.Err()
}

// downloadOne runs the full per-file protocol under the retry policy,
// returning the payload size on success.
//
// Each attempt restarts the whole protocol: payload fetch, companion
// fetch, digest verification. A checksum mismatch deletes both
// artifacts before the next attempt.
func (m *Manager) downloadOne(ctx context.Context, url, destDir string, batchTotal int) (int64, error) {
	destPath := filepath.Join(destDir, path.Base(url))

	var lastErr error
	for attempt := 0; attempt < m.cfg.Policy.Attempts(); attempt++ {
		if attempt > 0 {
			if err := m.cfg.Policy.Sleep(ctx, attempt-1); err != nil {
				return 0, err
			}
			m.logger.Debug("retrying download",
				zap.String("url", url),
				zap.Int("attempt", attempt))
		}

		n, err := m.attempt(ctx, url, destPath, batchTotal)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}
	return 0, lastErr
}

// attempt executes one pass of the per-file protocol.
func (m *Manager) attempt(ctx context.Context, url, destPath string, batchTotal int) (int64, error) {
	n, err := m.fetchFile(ctx, url, destPath, batchTotal)
	if err != nil {
		return 0, err
	}

	if m.cfg.VerifyChecksum && !strings.HasSuffix(url, ChecksumSuffix) {
		if _, err := m.fetchFile(ctx, url+ChecksumSuffix, destPath+ChecksumSuffix, 0); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrChecksumUnavailable, err)
		}
		if err := VerifyFile(destPath); err != nil {
			if IsChecksumMismatch(err) {
				// Invalid artifacts must not survive into a retry or
				// be mistaken for a completed download.
				_ = os.Remove(destPath)
				_ = os.Remove(destPath + ChecksumSuffix)
			}
			return 0, err
		}
	}

	return n, nil
}

// fetchFile streams one URL to destPath. Partial files are removed on
// failure so they can never be reported as success.
func (m *Manager) fetchFile(ctx context.Context, url, destPath string, batchTotal int) (int64, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	// Tolerate concurrent creation of shared parent directories.
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: unexpected status %d for %s", ErrTransport, resp.StatusCode, url)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}

	var src io.Reader = resp.Body
	if m.observer != nil && batchTotal > 0 {
		src = &progressReader{
			r:     resp.Body,
			total: resp.ContentLength,
			notify: func(done, size int64) {
				m.observer(0, batchTotal, progressLabel(url, done, size))
			},
		}
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(destPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return 0, fmt.Errorf("%w: %v", ErrTransport, copyErr)
	}
	return n, nil
}

// progressReader reports cumulative bytes read to notify.
type progressReader struct {
	r      io.Reader
	total  int64
	done   int64
	notify func(done, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.done += int64(n)
		pr.notify(pr.done, pr.total)
	}
	return n, err
}

// progressLabel renders "url (NN%)" when the size is known.
func progressLabel(url string, done, total int64) string {
	if total <= 0 {
		return url
	}
	pct := done * 100 / total
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%s (%d%%)", url, pct)
}
