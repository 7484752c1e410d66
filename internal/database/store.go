package database

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"tenant-backup/internal/errors"
	"tenant-backup/internal/logging"

	"github.com/goccy/go-json"
)

// MySQL DATETIME layout used when rows are turned into backup values.
const timestampLayout = "2006-01-02 15:04:05.999999"

// BinaryKey tags a column value that is not valid UTF-8. The bytes are kept
// base64 encoded as {"$binary": "..."} so the JSON document holds them
// exactly.
const BinaryKey = "$binary"

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_$]+$`)

// Store runs the row-level queries the backup and restore pipeline needs
// against one MySQL schema. Identifiers are validated and quoted; values
// always travel as placeholders.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewStore wraps an open connection pool
func NewStore(db *sql.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{db: db, logger: logger}
}

// ListTables returns the base tables of the connected schema
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	query := `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WrapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WrapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, "failed to iterate tables")
	}
	return tables, nil
}

// ReadPage reads one page of a table. An empty orderBy reads unordered.
func (s *Store) ReadPage(ctx context.Context, table, orderBy string, limit, offset int) ([]map[string]interface{}, error) {
	quotedTable, err := quoteIdentifier(table)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + quotedTable
	if orderBy != "" {
		quotedColumn, err := quoteIdentifier(orderBy)
		if err != nil {
			return nil, err
		}
		query += " ORDER BY " + quotedColumn
	}
	query += " LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("failed to read table %s", table))
	}
	defer rows.Close()

	page, err := scanRows(rows)
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("failed to scan table %s", table))
	}

	s.logger.WithFields(map[string]interface{}{
		"table":  table,
		"offset": offset,
		"rows":   len(page),
	}).Debug("Read page")

	return page, nil
}

// CountTenantRows counts the rows in table that belong to the tenant
func (s *Store) CountTenantRows(ctx context.Context, table, tenantColumn, tenantID string) (int64, error) {
	quotedTable, quotedColumn, err := quotePair(table, tenantColumn)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quotedTable, quotedColumn)
	if err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, errors.WrapError(err, fmt.Sprintf("failed to count rows in %s", table))
	}
	return count, nil
}

// DeleteTenantRows removes the tenant's rows from table
func (s *Store) DeleteTenantRows(ctx context.Context, table, tenantColumn, tenantID string) (int64, error) {
	quotedTable, quotedColumn, err := quotePair(table, tenantColumn)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quotedTable, quotedColumn)
	result, err := s.db.ExecContext(ctx, query, tenantID)
	if err != nil {
		return 0, errors.WrapError(err, fmt.Sprintf("failed to delete rows from %s", table))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapError(err, "failed to read affected rows")
	}
	return affected, nil
}

// InsertRows writes rows with a single multi-row INSERT. Columns are the
// sorted union of the rows' keys; a row missing a column inserts NULL.
func (s *Store) InsertRows(ctx context.Context, table string, rows []map[string]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	quotedTable, err := quoteIdentifier(table)
	if err != nil {
		return 0, err
	}

	columns := unionColumns(rows)
	quotedColumns := make([]string, len(columns))
	for i, column := range columns {
		quoted, err := quoteIdentifier(column)
		if err != nil {
			return 0, err
		}
		quotedColumns[i] = quoted
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	tuples := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		tuples[i] = placeholder
		for _, column := range columns {
			value, err := toSQLValue(row[column])
			if err != nil {
				return 0, errors.NewAppError(errors.ErrorTypeValidation,
					fmt.Sprintf("cannot encode column %s of %s", column, table), err)
			}
			args = append(args, value)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quotedTable, strings.Join(quotedColumns, ", "), strings.Join(tuples, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.WrapError(err, fmt.Sprintf("failed to insert rows into %s", table))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapError(err, "failed to read affected rows")
	}
	return affected, nil
}

func quoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", errors.NewAppError(errors.ErrorTypeValidation,
			fmt.Sprintf("invalid identifier %q", name), nil)
	}
	return "`" + name + "`", nil
}

func quotePair(table, column string) (string, string, error) {
	quotedTable, err := quoteIdentifier(table)
	if err != nil {
		return "", "", err
	}
	quotedColumn, err := quoteIdentifier(column)
	if err != nil {
		return "", "", err
	}
	return quotedTable, quotedColumn, nil
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			row[column] = fromSQLValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func fromSQLValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		if !utf8.Valid(v) {
			return map[string]interface{}{BinaryKey: base64.StdEncoding.EncodeToString(v)}
		}
		return string(v)
	case time.Time:
		return v.UTC().Format(timestampLayout)
	default:
		return v
	}
}

func toSQLValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.Number:
		return v.String(), nil
	case map[string]interface{}:
		if raw, ok := binaryValue(v); ok {
			decoded, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", BinaryKey, err)
			}
			return decoded, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	case []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	default:
		return v, nil
	}
}

func binaryValue(value map[string]interface{}) (string, bool) {
	if len(value) != 1 {
		return "", false
	}
	raw, ok := value[BinaryKey].(string)
	return raw, ok
}

func unionColumns(rows []map[string]interface{}) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for column := range row {
			seen[column] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for column := range seen {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
