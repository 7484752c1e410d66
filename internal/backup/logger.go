package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tenant-backup/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BackupLogger provides structured logging for backup and restore runs with
// correlation IDs and an optional audit trail
type BackupLogger struct {
	logger        *logging.Logger
	auditLogger   *logrus.Logger
	auditFile     io.Closer
	correlationID string
}

// BackupLoggerConfig holds configuration for backup logging
type BackupLoggerConfig struct {
	Logger        *logging.Logger
	AuditLogFile  string
	CorrelationID string
	// AuditOutput receives audit entries instead of AuditLogFile. Used by tests.
	AuditOutput io.Writer
}

// runEntry is the operational log record of one backup or restore
type runEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Operation     string                 `json:"operation"`
	Blob          string                 `json:"blob,omitempty"`
	Status        string                 `json:"status"`
	Duration      string                 `json:"duration,omitempty"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewBackupLogger creates a new backup logger with correlation ID support
func NewBackupLogger(config BackupLoggerConfig) (*BackupLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	bl := &BackupLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	var output io.Writer
	switch {
	case config.AuditOutput != nil:
		output = config.AuditOutput
	case config.AuditLogFile != "":
		auditDir := filepath.Dir(config.AuditLogFile)
		if err := os.MkdirAll(auditDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}

		auditFile, err := os.OpenFile(config.AuditLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		output = auditFile
		bl.auditFile = auditFile
	}

	if output != nil {
		auditLogger := logrus.New()
		auditLogger.SetOutput(output)
		auditLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		auditLogger.SetLevel(logrus.InfoLevel)
		bl.auditLogger = auditLogger
	}

	return bl, nil
}

// GetCorrelationID returns the current correlation ID
func (bl *BackupLogger) GetCorrelationID() string {
	return bl.correlationID
}

// Logger returns the underlying application logger
func (bl *BackupLogger) Logger() *logging.Logger {
	return bl.logger
}

// Close closes the audit log file, if one was opened
func (bl *BackupLogger) Close() error {
	if bl.auditFile != nil {
		return bl.auditFile.Close()
	}
	return nil
}

// LogBackupStart logs the start of a backup run and returns a function that
// logs its completion
func (bl *BackupLogger) LogBackupStart(ctx context.Context, dryRun bool) func(error, *RunReport) {
	startTime := time.Now()

	entry := runEntry{
		Timestamp:     startTime,
		CorrelationID: bl.correlationID,
		Operation:     "backup_run",
		Status:        "started",
		Success:       true,
		Metadata: map[string]interface{}{
			"dry_run": dryRun,
		},
	}

	bl.logStructured(entry)
	bl.logAudit(ctx, "backup", "create", "started", map[string]interface{}{
		"dry_run": dryRun,
	})

	return func(err error, report *RunReport) {
		duration := time.Since(startTime)
		entry.Timestamp = time.Now()
		entry.Status = "completed"
		entry.Duration = duration.String()
		entry.Success = err == nil

		if err != nil {
			entry.Error = err.Error()
			entry.Status = "failed"
		}

		details := map[string]interface{}{
			"dry_run":  dryRun,
			"duration": duration.String(),
		}
		if report != nil {
			entry.Blob = report.BlobName
			entry.Metadata["tables_ok"] = report.Succeeded()
			entry.Metadata["tables_failed"] = report.Failed()
			entry.Metadata["rows"] = report.TotalRows()
			entry.Metadata["compressed_size"] = report.CompressedSize
			entry.Metadata["hash"] = report.HashPrefix()
			entry.Metadata["untrustworthy"] = report.Untrustworthy
			details["blob"] = report.BlobName
			details["tables_failed"] = report.Failed()
			details["missing_critical"] = report.MissingCritical
			details["untrustworthy"] = report.Untrustworthy
		}
		if err != nil {
			details["error"] = entry.Error
		}

		bl.logStructured(entry)
		bl.logAudit(ctx, "backup", "create", resultOf(err), details)
	}
}

// LogRestoreStart logs the start of a tenant restore and returns a function
// that logs its completion
func (bl *BackupLogger) LogRestoreStart(ctx context.Context, tenantID, blob string, dryRun bool) func(error, *RestoreReport) {
	startTime := time.Now()

	entry := runEntry{
		Timestamp:     startTime,
		CorrelationID: bl.correlationID,
		Operation:     "tenant_restore",
		Blob:          blob,
		Status:        "started",
		Success:       true,
		Metadata: map[string]interface{}{
			"tenant_id": tenantID,
			"dry_run":   dryRun,
		},
	}

	bl.logStructured(entry)
	bl.logAudit(ctx, "restore", "start", "started", map[string]interface{}{
		"tenant_id": tenantID,
		"blob":      blob,
		"dry_run":   dryRun,
	})

	return func(err error, report *RestoreReport) {
		duration := time.Since(startTime)
		entry.Timestamp = time.Now()
		entry.Status = "completed"
		entry.Duration = duration.String()

		details := map[string]interface{}{
			"tenant_id": tenantID,
			"dry_run":   dryRun,
			"duration":  duration.String(),
		}
		if report != nil {
			entry.Blob = report.Blob
			details["blob"] = report.Blob
			failed := make([]string, 0)
			for _, t := range report.FailedTables() {
				failed = append(failed, t.Table)
			}
			entry.Metadata["tables"] = len(report.Tables)
			entry.Metadata["failed_tables"] = failed
			entry.Metadata["inserted"] = report.TotalInserted()
			details["tables"] = len(report.Tables)
			details["failed_tables"] = failed
			details["inserted"] = report.TotalInserted()
			if err == nil && report.HasFailures() {
				err = NewRestoreError(fmt.Sprintf("%d tables failed to restore", len(failed)), nil)
			}
		}

		entry.Success = err == nil
		if err != nil {
			entry.Error = err.Error()
			entry.Status = "failed"
			details["error"] = entry.Error
		}

		bl.logStructured(entry)
		bl.logAudit(ctx, "restore", "complete", resultOf(err), details)
	}
}

// LogRetention records every blob removed by the retention manager
func (bl *BackupLogger) LogRetention(ctx context.Context, action, blob string, err error) {
	details := map[string]interface{}{
		"blob": blob,
	}
	if err != nil {
		details["error"] = err.Error()
	}
	bl.logAudit(ctx, "blob", action, resultOf(err), details)
}

func (bl *BackupLogger) logStructured(entry runEntry) {
	fields := logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"operation":      entry.Operation,
		"status":         entry.Status,
		"success":        entry.Success,
	}

	if entry.Blob != "" {
		fields["blob"] = entry.Blob
	}
	if entry.Duration != "" {
		fields["duration"] = entry.Duration
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}

	for k, v := range entry.Metadata {
		fields[k] = v
	}

	logEntry := bl.logger.WithFields(fields)

	if entry.Success {
		if entry.Status == "started" {
			logEntry.Debug("Operation started")
		} else {
			logEntry.Info("Operation completed successfully")
		}
	} else {
		logEntry.Error("Operation failed")
	}
}

// logAudit logs an audit trail entry
func (bl *BackupLogger) logAudit(ctx context.Context, resource, action, result string, details map[string]interface{}) {
	if bl.auditLogger == nil {
		return
	}

	fields := logrus.Fields{
		"correlation_id": bl.correlationID,
		"operation":      fmt.Sprintf("%s_%s", resource, action),
		"resource":       resource,
		"action":         action,
		"result":         result,
		"details":        details,
	}
	if runID := logging.RunIDFromContext(ctx); runID != "" {
		fields["run_id"] = runID
	}

	bl.auditLogger.WithFields(fields).Info("Audit log entry")
}

func resultOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
