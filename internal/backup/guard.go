package backup

import (
	"fmt"
	"sort"
	"strings"
)

// CheckCriticalTables returns the critical tables that are missing from doc
// or whose extraction failed. When any are found the returned error is a
// PARTIAL_DATA_ERROR; the backup is still written.
func CheckCriticalTables(doc *BackupDocument, critical []string) ([]string, error) {
	var missing []string
	seen := make(map[string]bool, len(critical))

	for _, table := range critical {
		if seen[table] {
			continue
		}
		seen[table] = true

		snapshot, ok := doc.Tables[table]
		if !ok || !snapshot.Succeeded() {
			missing = append(missing, table)
		}
	}

	if len(missing) == 0 {
		return nil, nil
	}

	sort.Strings(missing)
	return missing, NewPartialDataError(
		fmt.Sprintf("critical tables missing or failed: %s", strings.Join(missing, ", ")), nil).
		WithContext("tables", missing)
}
