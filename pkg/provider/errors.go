package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrMalformedListing indicates a listing page could not be parsed.
	// Not retriable: re-requesting the same page reproduces the same bytes.
	ErrMalformedListing = errors.New("malformed listing response")

	// ErrListingUnavailable indicates a listing page could not be fetched
	// after the retry budget was exhausted. Fatal for the whole walk.
	ErrListingUnavailable = errors.New("listing unavailable")

	// ErrTransport indicates a transport-level failure: connection error,
	// timeout, or non-2xx status. Retriable.
	ErrTransport = errors.New("transport failure")
)

// Error wraps provider failures with operation context.
type Error struct {
	// Op is the operation that failed (e.g., "List").
	Op string

	// Provider names the provider implementation (e.g., "vision").
	Provider string

	// Prefix is the listing prefix, if applicable.
	Prefix string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Prefix != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Prefix, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsMalformedListing returns true if the error indicates an unparsable page.
func IsMalformedListing(err error) bool {
	return errors.Is(err, ErrMalformedListing)
}

// IsListingUnavailable returns true if the error indicates an exhausted
// retry budget for a listing page.
func IsListingUnavailable(err error) bool {
	return errors.Is(err, ErrListingUnavailable)
}

// IsTransport returns true if the error is a transport-level failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
