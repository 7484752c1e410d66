package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tenant-backup/internal/logging"

	"github.com/goccy/go-json"
)

// MetricsCollector accumulates run metrics across invocations in a JSON file
type MetricsCollector struct {
	logger     *logging.Logger
	metrics    *PipelineMetrics
	mu         sync.RWMutex
	reportPath string
}

// PipelineMetrics holds the counters persisted between runs
type PipelineMetrics struct {
	BackupOperations  *OperationMetrics `json:"backup_operations"`
	RestoreOperations *OperationMetrics `json:"restore_operations"`

	TablesFailed      int64  `json:"tables_failed"`
	CriticalWarnings  int64  `json:"critical_warnings"`
	UntrustworthyRuns int64  `json:"untrustworthy_runs"`
	BlobsDeleted      int64  `json:"blobs_deleted"`
	RowsBackedUp      int64  `json:"rows_backed_up"`
	RowsRestored      int64  `json:"rows_restored"`
	LastBlobSize      int64  `json:"last_blob_size"`
	LastBlob          string `json:"last_blob,omitempty"`

	LastSuccess time.Time `json:"last_success"`
	LastUpdate  time.Time `json:"last_update"`
}

// OperationMetrics tracks success/failure rates for operations
type OperationMetrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

func (om *OperationMetrics) record(success bool, duration time.Duration) {
	om.Total++
	if success {
		om.Success++
	} else {
		om.Failed++
	}
	om.SuccessRate = float64(om.Success) / float64(om.Total)

	if om.Total == 1 {
		om.AverageDuration = duration
		om.MinDuration = duration
		om.MaxDuration = duration
		return
	}
	om.AverageDuration = time.Duration((int64(om.AverageDuration)*(om.Total-1) + int64(duration)) / om.Total)
	if duration < om.MinDuration {
		om.MinDuration = duration
	}
	if duration > om.MaxDuration {
		om.MaxDuration = duration
	}
}

// NewMetricsCollector creates a collector. Metrics already stored at
// reportPath are loaded and extended; an empty path keeps them in memory.
func NewMetricsCollector(reportPath string, logger *logging.Logger) (*MetricsCollector, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	mc := &MetricsCollector{
		logger:     logger,
		reportPath: reportPath,
		metrics: &PipelineMetrics{
			BackupOperations:  &OperationMetrics{},
			RestoreOperations: &OperationMetrics{},
		},
	}

	if reportPath == "" {
		return mc, nil
	}

	data, err := os.ReadFile(reportPath)
	if os.IsNotExist(err) {
		return mc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}
	if err := json.Unmarshal(data, mc.metrics); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file: %w", err)
	}
	if mc.metrics.BackupOperations == nil {
		mc.metrics.BackupOperations = &OperationMetrics{}
	}
	if mc.metrics.RestoreOperations == nil {
		mc.metrics.RestoreOperations = &OperationMetrics{}
	}
	return mc, nil
}

// RecordBackup records one backup run
func (mc *MetricsCollector) RecordBackup(report *RunReport, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	success := err == nil
	mc.metrics.BackupOperations.record(success, report.Finished.Sub(report.Started))
	mc.metrics.TablesFailed += int64(report.Failed())
	if len(report.MissingCritical) > 0 {
		mc.metrics.CriticalWarnings++
	}
	if report.Untrustworthy {
		mc.metrics.UntrustworthyRuns++
	}
	if report.Retention != nil {
		mc.metrics.BlobsDeleted += int64(report.Retention.DeletedCount())
	}
	if success && !report.DryRun {
		mc.metrics.RowsBackedUp += int64(report.TotalRows())
		mc.metrics.LastBlob = report.BlobName
		mc.metrics.LastBlobSize = report.CompressedSize
		mc.metrics.LastSuccess = report.Finished
	}
	mc.metrics.LastUpdate = time.Now().UTC()
}

// RecordRestore records one tenant restore
func (mc *MetricsCollector) RecordRestore(report *RestoreReport, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var duration time.Duration
	if report != nil {
		duration = report.Finished.Sub(report.Started)
		mc.metrics.RowsRestored += report.TotalInserted()
	}
	mc.metrics.RestoreOperations.record(err == nil, duration)
	mc.metrics.LastUpdate = time.Now().UTC()
}

// GetMetrics returns a copy of the current metrics
func (mc *MetricsCollector) GetMetrics() PipelineMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	copied := *mc.metrics
	backups := *mc.metrics.BackupOperations
	restores := *mc.metrics.RestoreOperations
	copied.BackupOperations = &backups
	copied.RestoreOperations = &restores
	return copied
}

// Save writes the metrics to the report path
func (mc *MetricsCollector) Save() error {
	if mc.reportPath == "" {
		return nil
	}

	mc.mu.RLock()
	data, err := json.MarshalIndent(mc.metrics, "", "  ")
	mc.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(mc.reportPath), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := os.WriteFile(mc.reportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	mc.logger.WithField("path", mc.reportPath).Debug("Metrics written")
	return nil
}
