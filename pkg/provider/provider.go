// Package provider defines abstractions for remote archive listing providers.
//
// Providers expose a minimal surface: paginated delimiter listing of a
// prefix, and the URL prefix from which listed objects can be fetched.
// All access is anonymous HTTP GET - providers do not implement auth.
package provider

import "context"

// Provider abstracts a remote archive listing endpoint.
//
// Implementations should:
//   - Support pagination via marker continuation tokens
//   - Be safe for concurrent use
type Provider interface {
	// List returns one page of directories and objects under opts.Prefix.
	// Use Marker from a previous ListingPage for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListingPage, error)

	// DownloadPrefix returns the base URL objects are fetched from.
	// Appending an object key to it yields a fetchable URL.
	DownloadPrefix() string
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix scopes the listing to keys starting with this value.
	// Empty string lists from the root.
	Prefix string

	// Marker resumes listing from a previous ListingPage.NextMarker.
	// Empty string starts from the beginning.
	Marker string
}

// ListingPage is one decoded page of a listing response.
//
// Dirs are common prefixes ending with "/"; Objects are concrete keys.
// Both preserve provider response order. A page with Truncated set has
// more results reachable through NextMarker.
type ListingPage struct {
	// Dirs contains the child directory prefixes on this page.
	Dirs []string

	// Objects contains the object keys on this page.
	Objects []string

	// NextMarker continues the listing when Truncated is true.
	// May be empty even when Truncated is true; callers must treat
	// that as the end of the listing.
	NextMarker string

	// Truncated indicates more results are available.
	Truncated bool
}

// Keys returns the page contents in response order: directories first,
// then objects, matching the element order of the wire format.
func (p *ListingPage) Keys() []string {
	keys := make([]string, 0, len(p.Dirs)+len(p.Objects))
	keys = append(keys, p.Dirs...)
	keys = append(keys, p.Objects...)
	return keys
}
