package tree

import (
	"context"
	"sort"
	"strings"
)

// RootPrefix is the top of the archive hierarchy.
const RootPrefix = "data/"

// futuresDataType carries cm/um subtype directories between data type
// and interval, so its intervals are exposed as "subtype/interval".
const futuresDataType = "futures"

// Catalog derives the archive's navigation facets (data types,
// intervals, symbols) from listing walks.
type Catalog struct {
	walker *Walker
}

// NewCatalog creates a catalog over the given walker.
func NewCatalog(w *Walker) *Catalog {
	return &Catalog{walker: w}
}

// DataTypes returns the available data types (e.g. spot, futures,
// option), sorted and de-duplicated.
func (c *Catalog) DataTypes(ctx context.Context) ([]string, error) {
	paths, err := c.walker.Walk(ctx, RootPrefix)
	if err != nil {
		return nil, err
	}
	return uniqueSegments(paths, 1), nil
}

// Intervals returns the available intervals for a data type (e.g.
// daily, monthly), sorted and de-duplicated. For futures the cm/um
// subtypes are flattened into the interval as "cm/daily", "um/monthly".
func (c *Catalog) Intervals(ctx context.Context, dataType string) ([]string, error) {
	if dataType == futuresDataType {
		return c.futuresIntervals(ctx)
	}

	paths, err := c.walker.Walk(ctx, RootPrefix+dataType+"/")
	if err != nil {
		return nil, err
	}
	return uniqueSegments(paths, 2), nil
}

// Symbols returns the available symbols for a data type and interval,
// sorted and de-duplicated. A futures interval in "subtype/interval"
// form is resolved through the subtype directory.
func (c *Catalog) Symbols(ctx context.Context, dataType, interval string) ([]string, error) {
	depth := 3
	if dataType == futuresDataType && strings.Contains(interval, "/") {
		depth = 4
	}

	paths, err := c.walker.Walk(ctx, RootPrefix+dataType+"/"+interval+"/")
	if err != nil {
		return nil, err
	}
	return uniqueSegments(paths, depth), nil
}

// futuresIntervals walks each futures subtype and flattens the results.
func (c *Catalog) futuresIntervals(ctx context.Context) ([]string, error) {
	subtypePaths, err := c.walker.Walk(ctx, RootPrefix+futuresDataType+"/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var intervals []string
	for _, subtype := range uniqueSegments(subtypePaths, 2) {
		paths, err := c.walker.Walk(ctx, RootPrefix+futuresDataType+"/"+subtype+"/")
		if err != nil {
			return nil, err
		}
		for _, interval := range uniqueSegments(paths, 3) {
			combined := subtype + "/" + interval
			if _, ok := seen[combined]; ok {
				continue
			}
			seen[combined] = struct{}{}
			intervals = append(intervals, combined)
		}
	}

	sort.Strings(intervals)
	return intervals, nil
}

// uniqueSegments extracts path segment #idx from each key (segment 0 is
// "data"), discarding keys too short to have one. Results are sorted
// and de-duplicated.
func uniqueSegments(paths []string, idx int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range paths {
		parts := strings.Split(strings.TrimSuffix(p, "/"), "/")
		if len(parts) <= idx || parts[0] != "data" {
			continue
		}
		seg := parts[idx]
		if seg == "" {
			continue
		}
		if _, ok := seen[seg]; ok {
			continue
		}
		seen[seg] = struct{}{}
		out = append(out, seg)
	}
	sort.Strings(out)
	return out
}
