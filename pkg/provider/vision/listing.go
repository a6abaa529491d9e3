package vision

import (
	"encoding/xml"
	"fmt"

	"github.com/datahaul/histvision/pkg/provider"
)

// listBucketResult mirrors the wire schema of one listing page.
//
// CommonPrefixes and Contents appear zero, one, or many times; the XML
// decoder accumulates every occurrence into the slice, so the
// single-element and repeated-element encodings normalize to the same
// shape.
type listBucketResult struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	CommonPrefixes []commonPrefix `xml:"CommonPrefixes"`
	Contents       []contents     `xml:"Contents"`
	IsTruncated    string         `xml:"IsTruncated"`
	NextMarker     string         `xml:"NextMarker"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

type contents struct {
	Key string `xml:"Key"`
}

// ParseListing decodes one page of raw listing-response XML.
//
// Pure function, no I/O. Returns provider.ErrMalformedListing (wrapped)
// when the document is not a ListBucketResult; retrying a parse is
// pointless since the same bytes reproduce the same failure.
func ParseListing(raw []byte) (*provider.ListingPage, error) {
	var doc listBucketResult
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedListing, err)
	}

	page := &provider.ListingPage{
		NextMarker: doc.NextMarker,
		Truncated:  doc.IsTruncated == "true",
	}
	for _, cp := range doc.CommonPrefixes {
		page.Dirs = append(page.Dirs, cp.Prefix)
	}
	for _, c := range doc.Contents {
		page.Objects = append(page.Objects, c.Key)
	}
	return page, nil
}
