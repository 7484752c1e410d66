package backup

import (
	"bytes"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// createdLayout matches ISO-8601 with millisecond precision in UTC.
const createdLayout = "2006-01-02T15:04:05.000Z07:00"

// Wire shapes. Version 2 stores rows under "data" and the row count under
// "rows"; version 1 stored the rows under "rows" and the count under "count".
type (
	documentHeader struct {
		Version *int            `json:"version"`
		Created string          `json:"created"`
		Tables  json.RawMessage `json:"tables"`
	}

	snapshotV2 struct {
		Data  *[]Row  `json:"data,omitempty"`
		Rows  int     `json:"rows"`
		Error *string `json:"error,omitempty"`
	}

	snapshotV1 struct {
		Rows  *[]Row  `json:"rows,omitempty"`
		Count int     `json:"count"`
		Error *string `json:"error,omitempty"`
	}

	documentV2 struct {
		Version int                   `json:"version"`
		Created string                `json:"created"`
		Tables  map[string]snapshotV2 `json:"tables"`
	}
)

type tableDecoder func(raw json.RawMessage) (map[string]TableSnapshot, error)

var tableDecoders = map[int]tableDecoder{
	1: decodeTablesV1,
	2: decodeTablesV2,
}

// EncodeDocument serializes the document in the current wire format.
// Map keys are written in sorted order, so equal documents encode to equal
// bytes.
func EncodeDocument(doc *BackupDocument) ([]byte, error) {
	if doc == nil {
		return nil, NewValidationError("document cannot be nil", nil)
	}

	wire := documentV2{
		Version: DocumentVersion,
		Created: doc.Created.UTC().Format(createdLayout),
		Tables:  make(map[string]snapshotV2, len(doc.Tables)),
	}

	for name, snapshot := range doc.Tables {
		if !snapshot.Succeeded() {
			message := snapshot.Error
			wire.Tables[name] = snapshotV2{Error: &message}
			continue
		}
		data := snapshot.Data
		if data == nil {
			data = []Row{}
		}
		if err := checkText(name, data); err != nil {
			return nil, err
		}
		wire.Tables[name] = snapshotV2{Data: &data, Rows: len(data)}
	}

	encoded, err := json.Marshal(wire)
	if err != nil {
		return nil, NewValidationError("failed to serialize backup document", err)
	}
	return encoded, nil
}

// checkText rejects string values that are not valid UTF-8. The encoder
// would replace those bytes, so the blob would no longer hold the rows.
// Binary columns reach the document tagged and base64 encoded instead.
func checkText(table string, rows []Row) error {
	for i, row := range rows {
		for column, value := range row {
			if text, ok := value.(string); ok && !utf8.ValidString(text) {
				return NewValidationError(
					fmt.Sprintf("table %s row %d column %s is not valid UTF-8", table, i, column), nil)
			}
		}
	}
	return nil
}

// DecodeDocument parses any known document version. Numbers are kept as
// json.Number so identifiers survive without float rounding. A document
// with no tables key or an unknown version is corrupt.
func DecodeDocument(data []byte) (*BackupDocument, error) {
	var header documentHeader
	if err := unmarshalUseNumber(data, &header); err != nil {
		return nil, newCorruptBackupError("json", err)
	}

	if len(header.Tables) == 0 || bytes.Equal(header.Tables, []byte("null")) {
		return nil, newCorruptBackupError("json", fmt.Errorf("document has no tables"))
	}

	// Documents written before versioning carry no version field.
	version := 1
	if header.Version != nil {
		version = *header.Version
	}

	decode, ok := tableDecoders[version]
	if !ok {
		return nil, newCorruptBackupError("version", fmt.Errorf("unsupported document version %d", version))
	}

	tables, err := decode(header.Tables)
	if err != nil {
		return nil, newCorruptBackupError("json", err)
	}

	doc := &BackupDocument{Version: version, Tables: tables}
	if header.Created != "" {
		created, err := time.Parse(time.RFC3339Nano, header.Created)
		if err != nil {
			return nil, newCorruptBackupError("json", fmt.Errorf("invalid created timestamp: %w", err))
		}
		doc.Created = created.UTC()
	}
	return doc, nil
}

func decodeTablesV2(raw json.RawMessage) (map[string]TableSnapshot, error) {
	var wire map[string]snapshotV2
	if err := unmarshalUseNumber(raw, &wire); err != nil {
		return nil, err
	}

	tables := make(map[string]TableSnapshot, len(wire))
	for name, snapshot := range wire {
		converted, err := convertSnapshot(name, snapshot.Data, snapshot.Rows, snapshot.Error)
		if err != nil {
			return nil, err
		}
		tables[name] = converted
	}
	return tables, nil
}

func decodeTablesV1(raw json.RawMessage) (map[string]TableSnapshot, error) {
	var wire map[string]snapshotV1
	if err := unmarshalUseNumber(raw, &wire); err != nil {
		return nil, err
	}

	tables := make(map[string]TableSnapshot, len(wire))
	for name, snapshot := range wire {
		converted, err := convertSnapshot(name, snapshot.Rows, snapshot.Count, snapshot.Error)
		if err != nil {
			return nil, err
		}
		tables[name] = converted
	}
	return tables, nil
}

func convertSnapshot(name string, data *[]Row, count int, errMessage *string) (TableSnapshot, error) {
	switch {
	case data != nil && errMessage != nil:
		return TableSnapshot{}, fmt.Errorf("table %s is both a success and a failure", name)
	case errMessage != nil:
		if count != 0 {
			return TableSnapshot{}, fmt.Errorf("failed table %s reports %d rows", name, count)
		}
		message := *errMessage
		if message == "" {
			message = "extraction failed"
		}
		return TableSnapshot{Error: message}, nil
	case data != nil:
		rows := *data
		if rows == nil {
			rows = []Row{}
		}
		if count != len(rows) {
			return TableSnapshot{}, fmt.Errorf("table %s reports %d rows but holds %d", name, count, len(rows))
		}
		return TableSnapshot{Data: rows}, nil
	default:
		return TableSnapshot{}, fmt.Errorf("table %s has neither rows nor error", name)
	}
}

func unmarshalUseNumber(data []byte, v interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}
