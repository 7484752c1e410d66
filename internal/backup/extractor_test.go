package backup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "tenant-backup/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(reader PageReader) *PaginatedExtractor {
	extractor := NewPaginatedExtractor(reader, nil)
	extractor.SetRetryPolicy(apperrors.DefaultRetryPolicy().WithoutDelay())
	return extractor
}

func TestPaginatedExtractor_PageCounts(t *testing.T) {
	tests := []struct {
		rows  int
		pages int
	}{
		{rows: 0, pages: 1},
		{rows: 1, pages: 1},
		{rows: 999, pages: 1},
		{rows: 1000, pages: 2},
		{rows: 2500, pages: 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d rows", tt.rows), func(t *testing.T) {
			db := newFakeDatabase()
			db.tables["kunder"] = makeRows(tt.rows, 7, 1)

			extraction, err := newTestExtractor(db).ExtractTable(context.Background(), "kunder")
			require.NoError(t, err)

			assert.Len(t, extraction.Rows, tt.rows)
			assert.NotNil(t, extraction.Rows)
			assert.Equal(t, tt.pages, extraction.Pages)
			assert.True(t, extraction.Ordered)

			calls := db.callsFor("kunder")
			require.Len(t, calls, tt.pages)
			for i, call := range calls {
				assert.Equal(t, "id", call.orderBy)
				assert.Equal(t, DefaultPageSize, call.limit)
				assert.Equal(t, i*DefaultPageSize, call.offset)
			}
		})
	}
}

func TestPaginatedExtractor_RowsInOrder(t *testing.T) {
	db := newFakeDatabase()
	db.tables["kunder"] = makeRows(2500, 7, 1)

	extraction, err := newTestExtractor(db).ExtractTable(context.Background(), "kunder")
	require.NoError(t, err)

	for i, row := range extraction.Rows {
		require.Equal(t, i+1, row["id"])
	}
}

func TestPaginatedExtractor_UnknownOrderColumnFallsBack(t *testing.T) {
	db := newFakeDatabase()
	db.tables["audit_log"] = makeRows(2500, 7, 1)
	db.noID["audit_log"] = true

	extraction, err := newTestExtractor(db).ExtractTable(context.Background(), "audit_log")
	require.NoError(t, err)

	assert.Len(t, extraction.Rows, 2500)
	assert.Equal(t, 3, extraction.Pages)
	assert.False(t, extraction.Ordered)

	calls := db.callsFor("audit_log")
	require.Len(t, calls, 4)
	assert.Equal(t, pageCall{table: "audit_log", orderBy: "id", limit: 1000, offset: 0}, calls[0])
	assert.Equal(t, pageCall{table: "audit_log", orderBy: "", limit: 1000, offset: 0}, calls[1])
	assert.Equal(t, "", calls[2].orderBy)
	assert.Equal(t, 1000, calls[2].offset)
	assert.Equal(t, "", calls[3].orderBy)
	assert.Equal(t, 2000, calls[3].offset)
}

func TestPaginatedExtractor_RetriesTransientFailures(t *testing.T) {
	db := newFakeDatabase()
	db.tables["kunder"] = makeRows(3, 7, 1)
	db.failRead["kunder"] = errors.New("connection reset by peer")
	db.failTimes["kunder"] = 2

	var retries []int
	policy := apperrors.DefaultRetryPolicy().WithoutDelay()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		retries = append(retries, attempt)
	}

	extractor := NewPaginatedExtractor(db, nil)
	extractor.SetRetryPolicy(policy)

	extraction, err := extractor.ExtractTable(context.Background(), "kunder")
	require.NoError(t, err)
	assert.Len(t, extraction.Rows, 3)
	assert.Equal(t, []int{1, 2}, retries)
	assert.Len(t, db.callsFor("kunder"), 3)
}

func TestPaginatedExtractor_RetryBoundExhausted(t *testing.T) {
	cause := errors.New("connection reset by peer")
	db := newFakeDatabase()
	db.tables["kunder"] = makeRows(3, 7, 1)
	db.failRead["kunder"] = cause

	_, err := newTestExtractor(db).ExtractTable(context.Background(), "kunder")
	require.Error(t, err)
	assert.Len(t, db.callsFor("kunder"), 3)
	assert.ErrorIs(t, err, cause)

	var backupErr *BackupError
	require.True(t, errors.As(err, &backupErr))
	assert.Equal(t, BackupErrorTypeDatabase, backupErr.Type)
	assert.Equal(t, "kunder", backupErr.Context["table"])
	assert.Equal(t, 0, backupErr.Context["offset"])
}

func TestPaginatedExtractor_PermanentFailureIsNotRetried(t *testing.T) {
	db := newFakeDatabase()

	_, err := newTestExtractor(db).ExtractTable(context.Background(), "missing")
	require.Error(t, err)
	assert.Len(t, db.callsFor("missing"), 1)
	assert.Equal(t, apperrors.ErrorTypeSchema, apperrors.GetErrorType(err))
}

type failingAfterReader struct {
	inner  PageReader
	offset int
	err    error
}

func (f *failingAfterReader) ReadPage(ctx context.Context, table, orderBy string, limit, offset int) ([]Row, error) {
	if offset >= f.offset {
		return nil, f.err
	}
	return f.inner.ReadPage(ctx, table, orderBy, limit, offset)
}

func TestPaginatedExtractor_ReturnsPartialRowsOnFailure(t *testing.T) {
	db := newFakeDatabase()
	db.tables["kunder"] = makeRows(2500, 7, 1)
	reader := &failingAfterReader{inner: db, offset: 1000, err: errors.New("connection reset by peer")}

	extraction, err := newTestExtractor(reader).ExtractTable(context.Background(), "kunder")
	require.Error(t, err)
	assert.Len(t, extraction.Rows, 1000)
	assert.Equal(t, 1, extraction.Pages)
	assert.Contains(t, err.Error(), "failed to read kunder at offset 1000")
}

func TestPaginatedExtractor_FromConfig(t *testing.T) {
	db := newFakeDatabase()
	db.tables["kunder"] = makeRows(5, 7, 1)

	config := ExtractionConfig{PageSize: 2, OrderColumn: "", MaxAttempts: 1}
	extractor := NewPaginatedExtractorFromConfig(db, config, nil)
	assert.Equal(t, 2, extractor.PageSize())

	extraction, err := extractor.ExtractTable(context.Background(), "kunder")
	require.NoError(t, err)
	assert.Len(t, extraction.Rows, 5)
	assert.Equal(t, 3, extraction.Pages)
	assert.False(t, extraction.Ordered)
	for _, call := range db.callsFor("kunder") {
		assert.Equal(t, "", call.orderBy)
	}
}

func TestPaginatedExtractor_CanceledContext(t *testing.T) {
	db := newFakeDatabase()
	db.tables["kunder"] = makeRows(5, 7, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExtractor(db).ExtractTable(ctx, "kunder")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, db.callsFor("kunder"))
}
