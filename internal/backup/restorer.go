package backup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tenant-backup/internal/logging"
)

// Restorer writes one tenant's rows back into the live database. Each table
// is deleted then reinserted on its own; there is no transaction across
// tables, so the returned report is the record of what happened.
type Restorer struct {
	writer       TenantWriter
	tenantColumn string
	batchSize    int
	priority     []string
	logger       *logging.Logger
	reporter     ProgressReporter
}

// NewRestorer creates a restorer with the default tenant column and batch size
func NewRestorer(writer TenantWriter, logger *logging.Logger) *Restorer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Restorer{
		writer:       writer,
		tenantColumn: DefaultTenantColumn,
		batchSize:    DefaultBatchSize,
		priority:     DefaultPriorityTables(),
		logger:       logger,
		reporter:     nopReporter{},
	}
}

// NewRestorerFromConfig creates a restorer tuned by config
func NewRestorerFromConfig(writer TenantWriter, config RestoreConfig, logger *logging.Logger) *Restorer {
	r := NewRestorer(writer, logger)
	if config.TenantColumn != "" {
		r.tenantColumn = config.TenantColumn
	}
	if config.BatchSize > 0 {
		r.batchSize = config.BatchSize
	}
	r.priority = append([]string(nil), config.PriorityTables...)
	return r
}

// SetReporter sets the receiver of per-table progress
func (r *Restorer) SetReporter(reporter ProgressReporter) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	r.reporter = reporter
}

// OrderTables returns tables with the priority tables first, in priority
// order, then the rest alphabetically
func (r *Restorer) OrderTables(tables []string) []string {
	present := toSet(tables)
	ordered := make([]string, 0, len(tables))
	placed := make(map[string]bool, len(tables))

	for _, name := range r.priority {
		if present[name] && !placed[name] {
			ordered = append(ordered, name)
			placed[name] = true
		}
	}

	var rest []string
	for _, name := range tables {
		if !placed[name] {
			rest = append(rest, name)
			placed[name] = true
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// Plan reports what Restore would do without writing anything
func (r *Restorer) Plan(ctx context.Context, selection *Selection) []TableRestore {
	var results []TableRestore
	for _, table := range r.OrderTables(selection.TableNames()) {
		result := TableRestore{
			Table: table,
			State: RestoreStatePlanned,
			Rows:  len(selection.Tables[table]),
		}
		existing, err := r.writer.CountTenantRows(ctx, table, r.tenantColumn, selection.TenantID)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Existing = existing
		}
		r.reporter.TableRestored(result)
		results = append(results, result)
	}
	return results
}

// Restore deletes and reinserts every selected table. A failed table does
// not stop the others; its state and partial counts are in the result.
func (r *Restorer) Restore(ctx context.Context, selection *Selection) []TableRestore {
	var results []TableRestore
	for _, table := range r.OrderTables(selection.TableNames()) {
		if err := ctx.Err(); err != nil {
			result := TableRestore{
				Table:    table,
				State:    RestoreStateFailed,
				Rows:     len(selection.Tables[table]),
				FailedIn: RestoreStatePending,
				Error:    err.Error(),
			}
			r.reporter.TableRestored(result)
			results = append(results, result)
			continue
		}
		result := r.restoreTable(ctx, table, selection.TenantID, selection.Tables[table])
		r.reporter.TableRestored(result)
		results = append(results, result)
	}
	return results
}

func (r *Restorer) restoreTable(ctx context.Context, table, tenantID string, rows []Row) TableRestore {
	start := time.Now()
	result := TableRestore{Table: table, State: RestoreStatePending, Rows: len(rows)}

	fail := func(err error) TableRestore {
		result.FailedIn = result.State
		result.State = RestoreStateFailed
		result.Error = NewRestoreError(fmt.Sprintf("restore of %s failed while %s", table, result.FailedIn), err).Error()
		r.logger.WithFields(map[string]interface{}{
			"operation": "table_restore",
			"table":     table,
			"state":     string(result.FailedIn),
			"deleted":   result.Deleted,
			"inserted":  result.Inserted,
			"error":     err.Error(),
		}).Error("Table restore failed")
		return result
	}

	result.State = RestoreStateDeleting
	deleted, err := r.writer.DeleteTenantRows(ctx, table, r.tenantColumn, tenantID)
	if err != nil {
		return fail(err)
	}
	result.Deleted = deleted

	result.State = RestoreStateInserting
	for offset := 0; offset < len(rows); offset += r.batchSize {
		end := offset + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		inserted, err := r.writer.InsertRows(ctx, table, rows[offset:end])
		result.Inserted += inserted
		if err != nil {
			return fail(err)
		}
	}

	result.State = RestoreStateDone
	r.logger.WithFields(map[string]interface{}{
		"operation": "table_restore",
		"table":     table,
		"deleted":   result.Deleted,
		"inserted":  result.Inserted,
		"duration":  time.Since(start).String(),
	}).Info("Table restored")
	return result
}
