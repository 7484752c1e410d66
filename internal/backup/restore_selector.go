package backup

import (
	"fmt"
	"sort"
)

// SelectorOptions controls which tables and rows a tenant restore covers
type SelectorOptions struct {
	TenantColumn string
	GlobalTables []string
	// Tables limits the selection when not empty.
	Tables []string
}

// Skip reasons recorded in Selection.Skipped
const (
	SkipGlobal       = "global table"
	SkipNotRequested = "not requested"
	SkipFailed       = "failed in backup"
	SkipNoTenant     = "no tenant column"
	SkipNoRows       = "no rows for tenant"
	SkipNotInBackup  = "not in backup"
)

// Selection holds the rows of one tenant, grouped by table
type Selection struct {
	TenantID string
	Tables   map[string][]Row
	Skipped  map[string]string
}

// TableNames returns the selected tables in alphabetical order
func (s *Selection) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RowCount returns the number of selected rows across tables
func (s *Selection) RowCount() int {
	total := 0
	for _, rows := range s.Tables {
		total += len(rows)
	}
	return total
}

// SelectForTenant picks the rows of doc that belong to tenantID. Global
// tables, failed snapshots and tables without the tenant column are never
// selected; tables with no matching rows are omitted. Values are compared
// in their text form so numeric and string ids match.
func SelectForTenant(doc *BackupDocument, tenantID string, opts SelectorOptions) *Selection {
	column := opts.TenantColumn
	if column == "" {
		column = DefaultTenantColumn
	}

	global := toSet(opts.GlobalTables)
	requested := toSet(opts.Tables)

	selection := &Selection{
		TenantID: tenantID,
		Tables:   make(map[string][]Row),
		Skipped:  make(map[string]string),
	}

	for name, snapshot := range doc.Tables {
		switch {
		case global[name]:
			selection.Skipped[name] = SkipGlobal
			continue
		case len(requested) > 0 && !requested[name]:
			continue
		case !snapshot.Succeeded():
			selection.Skipped[name] = SkipFailed
			continue
		}

		rows, scoped := tenantRows(snapshot.Data, column, tenantID)
		switch {
		case !scoped:
			selection.Skipped[name] = SkipNoTenant
		case len(rows) == 0:
			selection.Skipped[name] = SkipNoRows
		default:
			selection.Tables[name] = rows
		}
	}

	for name := range requested {
		if _, ok := doc.Tables[name]; !ok {
			selection.Skipped[name] = SkipNotInBackup
		}
	}

	return selection
}

// TenantKnown reports whether doc holds any trace of tenantID. When the
// tenant registry table is in the backup it decides; otherwise any
// tenant-scoped row counts.
func TenantKnown(doc *BackupDocument, tenantID string, registryTable, registryKey, tenantColumn string) bool {
	if registryTable != "" {
		if snapshot, ok := doc.Tables[registryTable]; ok && snapshot.Succeeded() {
			for _, row := range snapshot.Data {
				if value, ok := row[registryKey]; ok && matchesTenant(value, tenantID) {
					return true
				}
			}
			return false
		}
	}

	for _, snapshot := range doc.Tables {
		if !snapshot.Succeeded() {
			continue
		}
		if rows, _ := tenantRows(snapshot.Data, tenantColumn, tenantID); len(rows) > 0 {
			return true
		}
	}
	return false
}

// tenantRows returns the rows whose column equals tenantID. scoped is false
// when no row carries the column at all.
func tenantRows(rows []Row, column, tenantID string) (matched []Row, scoped bool) {
	for _, row := range rows {
		value, ok := row[column]
		if !ok {
			continue
		}
		scoped = true
		if matchesTenant(value, tenantID) {
			matched = append(matched, row)
		}
	}
	return matched, scoped
}

func matchesTenant(value interface{}, tenantID string) bool {
	if value == nil {
		return false
	}
	return fmt.Sprint(value) == tenantID
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
