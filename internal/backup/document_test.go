package backup

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDocument_WireFormat(t *testing.T) {
	doc := NewDocument(time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC))
	doc.Tables["kunder"] = SuccessSnapshot([]Row{{"id": 1, "name": "Acme"}})
	doc.Tables["avtaler"] = SuccessSnapshot(nil)
	doc.Tables["invoices"] = FailedSnapshot(errors.New("boom"))

	encoded, err := EncodeDocument(doc)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"version": 2,
		"created": "2024-01-02T03:04:05.678Z",
		"tables": {
			"kunder":   {"data": [{"id": 1, "name": "Acme"}], "rows": 1},
			"avtaler":  {"data": [], "rows": 0},
			"invoices": {"error": "boom", "rows": 0}
		}
	}`, string(encoded))
}

func TestEncodeDocument_Deterministic(t *testing.T) {
	doc := sampleDocument()

	first, err := EncodeDocument(doc)
	require.NoError(t, err)
	second, err := EncodeDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncodeDocument_Nil(t *testing.T) {
	_, err := EncodeDocument(nil)
	require.Error(t, err)
}

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		version int
		check   func(t *testing.T, doc *BackupDocument)
	}{
		{
			name:    "version 2",
			input:   `{"version":2,"created":"2024-01-02T03:04:05.678Z","tables":{"kunder":{"data":[{"id":12345678901234567}],"rows":1},"invoices":{"error":"boom","rows":0}}}`,
			version: 2,
			check: func(t *testing.T, doc *BackupDocument) {
				assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC), doc.Created)
				require.Len(t, doc.Tables["kunder"].Data, 1)
				assert.Equal(t, json.Number("12345678901234567"), doc.Tables["kunder"].Data[0]["id"])
				assert.Equal(t, "boom", doc.Tables["invoices"].Error)
			},
		},
		{
			name:    "version 1",
			input:   `{"version":1,"created":"2023-06-01T00:00:00Z","tables":{"kunder":{"rows":[{"id":1},{"id":2}],"count":2},"avtaler":{"error":"denied","count":0}}}`,
			version: 1,
			check: func(t *testing.T, doc *BackupDocument) {
				assert.Equal(t, 2, doc.Tables["kunder"].Count())
				assert.False(t, doc.Tables["avtaler"].Succeeded())
				assert.Equal(t, "denied", doc.Tables["avtaler"].Error)
			},
		},
		{
			name:    "missing version is version 1",
			input:   `{"tables":{"kunder":{"rows":[],"count":0}}}`,
			version: 1,
			check: func(t *testing.T, doc *BackupDocument) {
				assert.True(t, doc.Created.IsZero())
				assert.True(t, doc.Tables["kunder"].Succeeded())
				assert.Equal(t, 0, doc.Tables["kunder"].Count())
			},
		},
		{
			name:    "empty error message gets a default",
			input:   `{"version":2,"tables":{"kunder":{"error":"","rows":0}}}`,
			version: 2,
			check: func(t *testing.T, doc *BackupDocument) {
				assert.Equal(t, "extraction failed", doc.Tables["kunder"].Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := DecodeDocument([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.version, doc.Version)
			tt.check(t, doc)
		})
	}
}

func TestDecodeDocument_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		stage string
	}{
		{name: "not json", input: `not json`, stage: "json"},
		{name: "missing tables", input: `{"version":2,"created":"2024-01-02T03:04:05.678Z"}`, stage: "json"},
		{name: "null tables", input: `{"version":2,"tables":null}`, stage: "json"},
		{name: "unknown version", input: `{"version":3,"tables":{}}`, stage: "version"},
		{name: "row count mismatch", input: `{"version":2,"tables":{"kunder":{"data":[{"id":1}],"rows":2}}}`, stage: "json"},
		{name: "success and failure", input: `{"version":2,"tables":{"kunder":{"data":[],"rows":0,"error":"x"}}}`, stage: "json"},
		{name: "failure with rows", input: `{"version":2,"tables":{"kunder":{"error":"x","rows":4}}}`, stage: "json"},
		{name: "neither rows nor error", input: `{"version":2,"tables":{"kunder":{"rows":0}}}`, stage: "json"},
		{name: "bad timestamp", input: `{"version":2,"created":"yesterday","tables":{}}`, stage: "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDocument([]byte(tt.input))
			require.Error(t, err)

			var corrupt *CorruptBackupError
			require.True(t, errors.As(err, &corrupt))
			assert.Equal(t, tt.stage, corrupt.Stage)
			assert.True(t, IsCorrupt(err))
		})
	}
}

func TestTableSnapshot(t *testing.T) {
	empty := SuccessSnapshot(nil)
	assert.True(t, empty.Succeeded())
	assert.NotNil(t, empty.Data)
	assert.Equal(t, 0, empty.Count())

	failed := FailedSnapshot(nil)
	assert.False(t, failed.Succeeded())
	assert.Equal(t, "extraction failed", failed.Error)
	assert.Equal(t, 0, failed.Count())
}

func TestEncodeDocument_RejectsInvalidUTF8(t *testing.T) {
	doc := NewDocument(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	doc.Tables["kunder"] = SuccessSnapshot([]Row{{"id": 1, "signature": string([]byte{0xff, 0xfe, 0x00, 0x80})}})

	_, err := EncodeDocument(doc)
	require.Error(t, err)

	var backupErr *BackupError
	require.True(t, errors.As(err, &backupErr))
	assert.Equal(t, BackupErrorTypeValidation, backupErr.Type)
	assert.Contains(t, backupErr.Message, "column signature")
}
