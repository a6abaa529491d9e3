package vision

import (
	"time"

	"github.com/datahaul/histvision/pkg/retry"
)

// Default endpoints for the public market-data archive.
const (
	// DefaultBaseURL is the anonymous bucket listing endpoint.
	DefaultBaseURL = "https://s3-ap-northeast-1.amazonaws.com/data.binance.vision"

	// DefaultDownloadPrefix is the base URL objects are fetched from.
	DefaultDownloadPrefix = "https://data.binance.vision/"
)

// Config configures the vision provider.
type Config struct {
	// BaseURL is the listing endpoint. Default: DefaultBaseURL.
	BaseURL string

	// DownloadPrefix is the object fetch base URL.
	// Default: DefaultDownloadPrefix.
	DownloadPrefix string

	// Timeout bounds each listing request. Default: 60s.
	Timeout time.Duration

	// Policy is the retry/backoff policy for page fetches. Construct
	// with retry.NewPolicy: only the zero value is treated as unset,
	// and retry.NewPolicy(0) is a valid no-retry policy.
	Policy retry.Policy
}

// DefaultConfig returns the default provider configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		DownloadPrefix: DefaultDownloadPrefix,
		Timeout:        60 * time.Second,
		Policy:         retry.NewPolicy(retry.DefaultMaxRetries),
	}
}
