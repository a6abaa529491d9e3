package download

import "errors"

// Per-file failure taxonomy. All three degrade to success=false in the
// batch result; the distinction is diagnostic only.
var (
	// ErrTransport indicates a network error, timeout, or non-2xx
	// status while fetching the payload.
	ErrTransport = errors.New("transport failure")

	// ErrChecksumUnavailable indicates the companion checksum file
	// could not be fetched or read.
	ErrChecksumUnavailable = errors.New("checksum unavailable")

	// ErrChecksumMismatch indicates the computed digest disagrees with
	// the companion file.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// IsTransport returns true for transport-level download failures.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsChecksumUnavailable returns true when the companion fetch failed.
func IsChecksumUnavailable(err error) bool {
	return errors.Is(err, ErrChecksumUnavailable)
}

// IsChecksumMismatch returns true on digest disagreement.
func IsChecksumMismatch(err error) bool {
	return errors.Is(err, ErrChecksumMismatch)
}
