package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datahaul/histvision/pkg/retry"
)

// archiveServer serves payloads and their checksum companions, tracking
// per-path fetch counts and the in-flight high-water mark.
type archiveServer struct {
	*httptest.Server

	mu       sync.Mutex
	payloads map[string][]byte   // path -> content
	badSums  map[string]int      // path -> serve a wrong digest for the first N companion fetches
	noSums   map[string]struct{} // path -> 404 the companion
	fetches  map[string]int

	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newArchiveServer(t *testing.T) *archiveServer {
	t.Helper()
	s := &archiveServer{
		payloads: make(map[string][]byte),
		badSums:  make(map[string]int),
		noSums:   make(map[string]struct{}),
		fetches:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *archiveServer) add(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[path] = content
}

func (s *archiveServer) fetchCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[path]
}

func (s *archiveServer) handle(w http.ResponseWriter, r *http.Request) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxInFlight.Load()
		if cur <= max || s.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.fetches[r.URL.Path]++

	if base, ok := strings.CutSuffix(r.URL.Path, ChecksumSuffix); ok {
		payload, exists := s.payloads[base]
		if _, missing := s.noSums[base]; missing || !exists {
			s.mu.Unlock()
			http.NotFound(w, r)
			return
		}
		digest := digestOf(payload)
		if s.badSums[base] > 0 {
			s.badSums[base]--
			digest = digestOf([]byte("corrupted"))
		}
		s.mu.Unlock()
		_, _ = w.Write([]byte(digest + "  " + filepath.Base(base) + "\n"))
		return
	}

	payload, exists := s.payloads[r.URL.Path]
	s.mu.Unlock()
	if !exists {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(payload)
}

func testManager(cfg Config) *Manager {
	if cfg.Policy.Unit == 0 {
		cfg.Policy.Unit = time.Millisecond
	}
	return New(cfg)
}

func TestDownloadAllVerified(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/data/BTCUSDT-2020-01-03.zip", []byte("jan third"))
	srv.add("/data/BTCUSDT-2020-01-04.zip", []byte("jan fourth"))

	urls := []string{
		srv.URL + "/data/BTCUSDT-2020-01-03.zip",
		srv.URL + "/data/BTCUSDT-2020-01-04.zip",
	}
	dest := t.TempDir()

	m := testManager(Config{Concurrency: 2, VerifyChecksum: true, Policy: retry.Policy{MaxRetries: 1}})
	results, summary, err := m.DownloadAll(context.Background(), urls, dest)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, u := range urls {
		assert.True(t, results[u], u)
	}
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.FailedURLs)
	assert.Equal(t, int64(len("jan third")+len("jan fourth")), summary.Bytes)

	// Payload and companion both land in the destination.
	data, err := os.ReadFile(filepath.Join(dest, "BTCUSDT-2020-01-03.zip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jan third"), data)
	_, err = os.Stat(filepath.Join(dest, "BTCUSDT-2020-01-03.zip"+ChecksumSuffix))
	assert.NoError(t, err)
}

// With a retry budget of 0 a persistent checksum mismatch is recorded
// as failure after exactly one protocol cycle, with both artifacts
// deleted.
func TestDownloadAllChecksumMismatchNoRetries(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/a.zip", []byte("payload"))
	srv.badSums["/a.zip"] = 100 // always wrong

	dest := t.TempDir()
	m := testManager(Config{VerifyChecksum: true, Policy: retry.Policy{MaxRetries: 0}})

	results, summary, err := m.DownloadAll(context.Background(), []string{srv.URL + "/a.zip"}, dest)
	require.NoError(t, err)

	assert.False(t, results[srv.URL+"/a.zip"])
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{srv.URL + "/a.zip"}, summary.FailedURLs)
	assert.Equal(t, 1, srv.fetchCount("/a.zip"), "exactly one fetch cycle")

	_, err = os.Stat(filepath.Join(dest, "a.zip"))
	assert.True(t, os.IsNotExist(err), "mismatched payload must be deleted")
	_, err = os.Stat(filepath.Join(dest, "a.zip"+ChecksumSuffix))
	assert.True(t, os.IsNotExist(err), "mismatched companion must be deleted")
}

// A mismatch on the first cycle restarts the whole protocol; a correct
// companion on the second cycle succeeds.
func TestDownloadAllChecksumMismatchRecovers(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/a.zip", []byte("payload"))
	srv.badSums["/a.zip"] = 1

	dest := t.TempDir()
	m := testManager(Config{VerifyChecksum: true, Policy: retry.Policy{MaxRetries: 2}})

	results, summary, err := m.DownloadAll(context.Background(), []string{srv.URL + "/a.zip"}, dest)
	require.NoError(t, err)

	assert.True(t, results[srv.URL+"/a.zip"])
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, srv.fetchCount("/a.zip"), "payload re-fetched after mismatch")
}

// One file's failure never aborts the batch.
func TestDownloadAllPartialFailure(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/good.zip", []byte("fine"))

	urls := []string{srv.URL + "/good.zip", srv.URL + "/missing.zip"}
	m := testManager(Config{VerifyChecksum: false, Policy: retry.Policy{MaxRetries: 1}})

	results, summary, err := m.DownloadAll(context.Background(), urls, t.TempDir())
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.True(t, results[srv.URL+"/good.zip"])
	assert.False(t, results[srv.URL+"/missing.zip"])
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, srv.fetchCount("/missing.zip"), "transport failures use the retry budget")
}

// A policy constructed with NewPolicy(0) means exactly one attempt.
// New must not mistake it for an unset policy and substitute the
// default retry budget.
func TestDownloadAllZeroRetriesSingleAttempt(t *testing.T) {
	srv := newArchiveServer(t)

	m := New(Config{Policy: retry.NewPolicy(0)})
	url := srv.URL + "/missing.zip"

	results, summary, err := m.DownloadAll(context.Background(), []string{url}, t.TempDir())
	require.NoError(t, err)

	assert.False(t, results[url])
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, srv.fetchCount("/missing.zip"), "zero retries means exactly one attempt")
}

func TestDownloadAllChecksumUnavailable(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/bare.zip", []byte("no companion"))
	srv.noSums["/bare.zip"] = struct{}{}

	m := testManager(Config{VerifyChecksum: true, Policy: retry.Policy{MaxRetries: 1}})
	url := srv.URL + "/bare.zip"

	results, summary, err := m.DownloadAll(context.Background(), []string{url}, t.TempDir())
	require.NoError(t, err)

	assert.False(t, results[url])
	assert.Equal(t, []string{url}, summary.FailedURLs)
	assert.Equal(t, 2, srv.fetchCount("/bare.zip"), "companion failure retries the whole protocol")
}

// A URL that already denotes a checksum companion is fetched without a
// second-level companion even when verification is on.
func TestDownloadAllChecksumURLSkipsVerification(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/a.zip", []byte("payload"))

	m := testManager(Config{VerifyChecksum: true, Policy: retry.Policy{MaxRetries: 0}})
	url := srv.URL + "/a.zip" + ChecksumSuffix

	results, _, err := m.DownloadAll(context.Background(), []string{url}, t.TempDir())
	require.NoError(t, err)

	assert.True(t, results[url])
	assert.Equal(t, 1, srv.fetchCount("/a.zip"+ChecksumSuffix))
	assert.Equal(t, 0, srv.fetchCount("/a.zip"+ChecksumSuffix+ChecksumSuffix))
}

func TestDownloadAllConcurrencyBound(t *testing.T) {
	srv := newArchiveServer(t)
	srv.delay = 30 * time.Millisecond

	var urls []string
	for _, name := range []string{"/a.zip", "/b.zip", "/c.zip", "/d.zip", "/e.zip"} {
		srv.add(name, []byte(name))
		urls = append(urls, srv.URL+name)
	}

	m := testManager(Config{Concurrency: 2, VerifyChecksum: false, Policy: retry.Policy{MaxRetries: 0}})
	results, summary, err := m.DownloadAll(context.Background(), urls, t.TempDir())
	require.NoError(t, err)

	assert.Len(t, results, 5)
	assert.Equal(t, 5, summary.Succeeded)
	assert.LessOrEqual(t, srv.maxInFlight.Load(), int32(2), "admission gate exceeded")
}

func TestDownloadAllResultCompleteness(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/a.zip", []byte("a"))
	srv.add("/b.zip", []byte("b"))

	// Duplicate URLs are dispatched as tasks but collapse in the map.
	urls := []string{srv.URL + "/a.zip", srv.URL + "/b.zip", srv.URL + "/a.zip"}
	m := testManager(Config{VerifyChecksum: false, Policy: retry.Policy{MaxRetries: 0}})

	results, summary, err := m.DownloadAll(context.Background(), urls, t.TempDir())
	require.NoError(t, err)

	assert.Len(t, results, 2, "map keys are unique URLs")
	assert.Equal(t, 3, summary.Total, "summary counts tasks")
	assert.Equal(t, 3, summary.Succeeded)
}

func TestDownloadAllObserver(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/a.zip", []byte("aaaa"))
	srv.add("/b.zip", []byte("bbbb"))

	var mu sync.Mutex
	var terminal []int
	sawInProgress := false

	m := testManager(Config{Concurrency: 1, VerifyChecksum: false, Policy: retry.Policy{MaxRetries: 0}}).
		WithObserver(func(completed, total int, label string) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 2, total)
			if completed == 0 {
				sawInProgress = true
				assert.NotEmpty(t, label)
				return
			}
			terminal = append(terminal, completed)
		})

	_, _, err := m.DownloadAll(context.Background(), []string{srv.URL + "/a.zip", srv.URL + "/b.zip"}, t.TempDir())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawInProgress, "byte progress reported with completed==0")
	assert.Equal(t, []int{1, 2}, terminal)
}

func TestDownloadAllCancellation(t *testing.T) {
	srv := newArchiveServer(t)
	srv.add("/a.zip", []byte("a"))
	srv.add("/b.zip", []byte("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := testManager(Config{VerifyChecksum: false, Policy: retry.Policy{MaxRetries: 3}})
	results, summary, err := m.DownloadAll(ctx, []string{srv.URL + "/a.zip", srv.URL + "/b.zip"}, t.TempDir())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 2, "every task still gets a recorded outcome")
	assert.Equal(t, 2, summary.Failed)
}

func TestDownloadAllEmptyBatch(t *testing.T) {
	m := testManager(Config{})
	results, summary, err := m.DownloadAll(context.Background(), nil, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, summary.Total)
}
