package backup

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SchemaSource produces the list of tables a run should back up
type SchemaSource interface {
	Name() string
	Tables(ctx context.Context) ([]string, error)
}

// RemoteCatalog asks the source database for its current tables
type RemoteCatalog struct {
	catalog CatalogReader
}

// NewRemoteCatalog creates a catalog-backed source
func NewRemoteCatalog(catalog CatalogReader) *RemoteCatalog {
	return &RemoteCatalog{catalog: catalog}
}

// Name returns the strategy name recorded in the run report
func (rc *RemoteCatalog) Name() string {
	return "catalog"
}

// Tables lists the base tables of the source database
func (rc *RemoteCatalog) Tables(ctx context.Context) ([]string, error) {
	return rc.catalog.ListTables(ctx)
}

// StaticList is the maintained allow-list used when the catalog is unavailable
type StaticList struct {
	tables []string
}

// NewStaticList creates a source that always returns tables
func NewStaticList(tables []string) *StaticList {
	return &StaticList{tables: append([]string(nil), tables...)}
}

// Name returns the strategy name recorded in the run report
func (sl *StaticList) Name() string {
	return "static"
}

// Tables returns a copy of the configured list
func (sl *StaticList) Tables(ctx context.Context) ([]string, error) {
	return append([]string(nil), sl.tables...), nil
}

// Discovery is the outcome of table discovery
type Discovery struct {
	Tables   []string
	Strategy string
	// Warning is set when the fallback list had to be used.
	Warning string
}

// DiscoverTables lists the tables to back up. When primary fails or returns
// nothing, fallback is used and the substitution is reported in Warning.
// Excluded tables are removed whichever source answered. The result is sorted
// and free of duplicates. Discovery never fails.
func DiscoverTables(ctx context.Context, primary, fallback SchemaSource, excluded []string) Discovery {
	tables, err := primary.Tables(ctx)
	if err == nil && len(normalizeTables(tables, excluded)) > 0 {
		return Discovery{
			Tables:   normalizeTables(tables, excluded),
			Strategy: primary.Name(),
		}
	}

	var reason string
	if err != nil {
		reason = fmt.Sprintf("table discovery via %s failed: %v", primary.Name(), err)
	} else {
		reason = fmt.Sprintf("table discovery via %s returned no tables", primary.Name())
	}

	discovery := Discovery{
		Strategy: fallback.Name(),
		Warning:  reason + "; using " + fallback.Name() + " table list",
	}

	tables, err = fallback.Tables(ctx)
	if err != nil {
		discovery.Warning += fmt.Sprintf(" (fallback failed: %v)", err)
		discovery.Tables = []string{}
		return discovery
	}
	discovery.Tables = normalizeTables(tables, excluded)
	return discovery
}

// FallbackSource pairs a primary source with its fallback and the exclusion set
type FallbackSource struct {
	primary  SchemaSource
	fallback SchemaSource
	excluded []string
}

// NewFallbackSource creates a source that falls back when primary fails
func NewFallbackSource(primary, fallback SchemaSource, excluded []string) *FallbackSource {
	return &FallbackSource{
		primary:  primary,
		fallback: fallback,
		excluded: append([]string(nil), excluded...),
	}
}

// Discover runs DiscoverTables over the configured sources
func (fs *FallbackSource) Discover(ctx context.Context) Discovery {
	return DiscoverTables(ctx, fs.primary, fs.fallback, fs.excluded)
}

func normalizeTables(tables []string, excluded []string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[strings.ToLower(strings.TrimSpace(name))] = true
	}

	seen := make(map[string]bool, len(tables))
	result := make([]string, 0, len(tables))
	for _, name := range tables {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] || skip[strings.ToLower(name)] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}

	sort.Strings(result)
	return result
}
