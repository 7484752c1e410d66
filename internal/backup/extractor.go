package backup

import (
	"context"
	"fmt"
	"time"

	apperrors "tenant-backup/internal/errors"
	"tenant-backup/internal/logging"
)

// Extraction is every row of one table plus how it was read
type Extraction struct {
	Rows    []Row
	Pages   int
	Ordered bool
}

// PaginatedExtractor reads whole tables page by page
type PaginatedExtractor struct {
	reader      PageReader
	pageSize    int
	orderColumn string
	policy      apperrors.RetryPolicy
	logger      *logging.Logger
}

// NewPaginatedExtractor creates an extractor with the default page size,
// order column and retry policy
func NewPaginatedExtractor(reader PageReader, logger *logging.Logger) *PaginatedExtractor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	pe := &PaginatedExtractor{
		reader:      reader,
		pageSize:    DefaultPageSize,
		orderColumn: DefaultOrderColumn,
		logger:      logger,
	}
	pe.SetRetryPolicy(apperrors.DefaultRetryPolicy())
	return pe
}

// NewPaginatedExtractorFromConfig creates an extractor tuned by config
func NewPaginatedExtractorFromConfig(reader PageReader, config ExtractionConfig, logger *logging.Logger) *PaginatedExtractor {
	pe := NewPaginatedExtractor(reader, logger)
	if config.PageSize > 0 {
		pe.pageSize = config.PageSize
	}
	pe.orderColumn = config.OrderColumn
	pe.SetRetryPolicy(config.RetryPolicy())
	return pe
}

// SetRetryPolicy replaces the per-page retry policy
func (pe *PaginatedExtractor) SetRetryPolicy(policy apperrors.RetryPolicy) {
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		pe.logger.LogRetry("read_page", attempt, delay, err)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	pe.policy = policy
}

// PageSize returns the number of rows requested per page
func (pe *PaginatedExtractor) PageSize() int {
	return pe.pageSize
}

// ExtractTable reads every row of table. Pages are ordered by the order
// column; when the table has no such column the same page is read again
// unordered and the rest of the table follows unordered. A page shorter than
// the page size ends the table. When a page still fails after the retry
// bound the rows read so far are returned with the error.
func (pe *PaginatedExtractor) ExtractTable(ctx context.Context, table string) (Extraction, error) {
	result := Extraction{Rows: []Row{}, Ordered: pe.orderColumn != ""}
	orderBy := pe.orderColumn
	offset := 0

	for {
		var page []Row
		err := pe.policy.Do(ctx, func(ctx context.Context) error {
			rows, err := pe.reader.ReadPage(ctx, table, orderBy, pe.pageSize, offset)
			if err != nil && orderBy != "" && apperrors.IsUnknownColumn(err) {
				pe.logger.WithFields(map[string]interface{}{
					"table":        table,
					"order_column": orderBy,
					"offset":       offset,
				}).Debug("Order column missing, reading unordered")
				orderBy = ""
				result.Ordered = false
				rows, err = pe.reader.ReadPage(ctx, table, "", pe.pageSize, offset)
			}
			if err != nil {
				return err
			}
			page = rows
			return nil
		})
		if err != nil {
			return result, NewDatabaseError(
				fmt.Sprintf("failed to read %s at offset %d", table, offset), err).
				WithContext("table", table).
				WithContext("offset", offset)
		}

		result.Pages++
		result.Rows = append(result.Rows, page...)

		if len(page) < pe.pageSize {
			return result, nil
		}
		offset += len(page)
	}
}
