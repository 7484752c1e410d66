package backup

import (
	"context"
	"time"
)

// Row is one extracted record, column name to value. No schema is enforced
// beyond what the source database returns.
type Row = map[string]interface{}

// PageReader reads one page of a table. An empty orderBy reads unordered.
type PageReader interface {
	ReadPage(ctx context.Context, table, orderBy string, limit, offset int) ([]Row, error)
}

// CatalogReader lists the tables of the source database
type CatalogReader interface {
	ListTables(ctx context.Context) ([]string, error)
}

// TenantWriter performs the tenant-scoped writes of a restore
type TenantWriter interface {
	CountTenantRows(ctx context.Context, table, tenantColumn, tenantID string) (int64, error)
	DeleteTenantRows(ctx context.Context, table, tenantColumn, tenantID string) (int64, error)
	InsertRows(ctx context.Context, table string, rows []Row) (int64, error)
}

// ObjectInfo describes a stored blob
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ObjectStore stores named blobs in a single container. Upload overwrites an
// existing blob of the same name.
type ObjectStore interface {
	EnsureContainer(ctx context.Context) error
	Upload(ctx context.Context, name string, data []byte) error
	Download(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// ProgressReporter receives per-table progress while a run is in flight
type ProgressReporter interface {
	TableExtracted(result TableResult)
	TableRestored(result TableRestore)
}

type nopReporter struct{}

func (nopReporter) TableExtracted(TableResult) {}
func (nopReporter) TableRestored(TableRestore) {}
