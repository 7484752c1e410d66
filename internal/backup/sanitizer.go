package backup

import (
	"strings"
)

// RedactionMarker replaces the value of every sanitized field
const RedactionMarker = "[REDACTED]"

// SanitizationRules maps a table name to the fields redacted before the table
// is written to a backup. Tables without an entry are stored unchanged.
type SanitizationRules map[string][]string

// Apply returns rows with the configured fields of table redacted. The input
// rows are never modified; a field absent from a row is not added.
func (sr SanitizationRules) Apply(table string, rows []Row) []Row {
	fields := sr[table]
	if len(fields) == 0 {
		return rows
	}

	sanitized := make([]Row, len(rows))
	for i, row := range rows {
		copied := make(Row, len(row))
		for column, value := range row {
			copied[column] = value
		}
		for _, field := range fields {
			if _, ok := copied[field]; ok {
				copied[field] = RedactionMarker
			}
		}
		sanitized[i] = copied
	}
	return sanitized
}

// Fields returns the fields redacted for table
func (sr SanitizationRules) Fields(table string) []string {
	return sr[table]
}

// Validate rejects empty table or field names
func (sr SanitizationRules) Validate() error {
	var problems ValidationErrors

	for table, fields := range sr {
		if strings.TrimSpace(table) == "" {
			problems.Add("table", "table name cannot be empty", table)
		}
		for _, field := range fields {
			if strings.TrimSpace(field) == "" {
				problems.Add(table, "field name cannot be empty", field)
			}
		}
	}

	return problems.Err()
}
