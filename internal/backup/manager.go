package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenant-backup/internal/logging"
)

// RunnerDependencies are the collaborators a Runner drives. Catalog and
// Reader are needed for backups, Writer for restores.
type RunnerDependencies struct {
	Catalog CatalogReader
	Reader  PageReader
	Writer  TenantWriter
	Store   ObjectStore
}

// BackupOptions controls one backup run
type BackupOptions struct {
	// DryRun builds and verifies the blob without uploading it or applying
	// retention.
	DryRun bool
}

// RestoreOptions controls one tenant restore
type RestoreOptions struct {
	TenantID string
	// Blob is restored from; empty selects the newest encrypted blob.
	Blob string
	// Tables limits the restore when not empty.
	Tables []string
	// Confirm must be set for anything to be written.
	Confirm bool
}

// Runner orchestrates backup runs and tenant restores
type Runner struct {
	config   *Config
	deps     RunnerDependencies
	logger   *BackupLogger
	reporter ProgressReporter
	metrics  *MetricsCollector
	now      func() time.Time
	seal     func(*Cipher, *BackupDocument) ([]byte, []byte, error)
}

// NewRunner creates a new runner
func NewRunner(config *Config, deps RunnerDependencies, logger *BackupLogger) (*Runner, error) {
	if config == nil {
		return nil, NewConfigurationError("configuration is required", nil)
	}
	if deps.Store == nil {
		return nil, NewConfigurationError("object store is required", nil)
	}

	if logger == nil {
		var err error
		logger, err = NewBackupLogger(BackupLoggerConfig{})
		if err != nil {
			return nil, err
		}
	}

	return &Runner{
		config:   config,
		deps:     deps,
		logger:   logger,
		reporter: nopReporter{},
		now:      time.Now,
		seal:     (*Cipher).SealDocument,
	}, nil
}

// SetReporter sets the receiver of per-table progress
func (r *Runner) SetReporter(reporter ProgressReporter) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	r.reporter = reporter
}

// SetMetrics sets the collector that records every run
func (r *Runner) SetMetrics(metrics *MetricsCollector) {
	r.metrics = metrics
}

// Backup runs discovery, extraction, sanitization, encryption, verification,
// upload and retention. Table-level failures are recorded in the report and
// do not fail the run. An error is returned when no trustworthy blob was
// produced; the report is returned in every case.
func (r *Runner) Backup(ctx context.Context, opts BackupOptions) (*RunReport, error) {
	started := r.now().UTC()
	report := &RunReport{
		RunID:   r.logger.GetCorrelationID(),
		Started: started,
		DryRun:  opts.DryRun,
		Tables:  []TableResult{},
	}
	ctx = logging.ContextWithRunID(ctx, report.RunID)

	done := r.logger.LogBackupStart(ctx, opts.DryRun)
	err := r.backup(ctx, opts, report)
	report.Finished = r.now().UTC()
	done(err, report)
	if r.metrics != nil {
		r.metrics.RecordBackup(report, err)
	}

	return report, err
}

func (r *Runner) backup(ctx context.Context, opts BackupOptions, report *RunReport) error {
	if r.deps.Catalog == nil || r.deps.Reader == nil {
		return NewConfigurationError("backup requires a table catalog and a page reader", nil)
	}
	log := r.logger.Logger()

	cipher, err := NewCipher(r.config.Encryption.Passphrase)
	if err != nil {
		return err
	}

	source := NewFallbackSource(
		NewRemoteCatalog(r.deps.Catalog),
		NewStaticList(r.config.Extraction.FallbackTables),
		r.config.Extraction.ExcludedTables,
	)
	discovery := source.Discover(ctx)
	report.DiscoveryStrategy = discovery.Strategy
	if discovery.Warning != "" {
		report.Warnings = append(report.Warnings, discovery.Warning)
		log.Warn(discovery.Warning)
	}

	doc := NewDocument(report.Started)
	extractor := NewPaginatedExtractorFromConfig(r.deps.Reader, r.config.Extraction, log)

	for _, table := range discovery.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := r.extractTable(ctx, extractor, doc, table)
		report.Tables = append(report.Tables, result)
		r.reporter.TableExtracted(result)
	}

	if missing, guardErr := CheckCriticalTables(doc, r.config.CriticalTables); guardErr != nil {
		report.MissingCritical = missing
		report.Warnings = append(report.Warnings, guardErr.Error())
		log.WithFields(map[string]interface{}{
			"operation": "critical_table_check",
			"missing":   missing,
		}).Warn("Backup is missing critical tables")
	}

	blob, plaintext, err := r.sealAndVerify(cipher, doc)
	if err != nil {
		var mismatch *LocalVerificationError
		if errors.As(err, &mismatch) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("blob failed local verification; nothing uploaded: %s", err))
		}
		return err
	}
	report.PlaintextSize = int64(len(plaintext))
	report.CompressedSize = int64(len(blob))
	report.Hash = PlaintextHash(plaintext)
	report.LocallyVerified = true
	report.BlobName = BlobName(report.Started)

	if opts.DryRun {
		log.WithField("blob", report.BlobName).Info("Dry run, blob not uploaded")
		return nil
	}

	if err := r.deps.Store.EnsureContainer(ctx); err != nil {
		return NewStorageError("failed to prepare object store container", err)
	}

	name, err := r.unusedBlobName(ctx, report.Started)
	if err != nil {
		return err
	}
	report.BlobName = name

	verifier := NewIntegrityVerifier(cipher)
	if err := r.uploadAndVerify(ctx, verifier, report.BlobName, blob, report.Hash); err != nil {
		var uploadErr *UploadVerificationError
		if errors.As(err, &uploadErr) {
			report.Uploaded = true
			report.Untrustworthy = true
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("blob %s failed post-upload verification; retention skipped", report.BlobName))
		}
		return err
	}
	report.Uploaded = true
	report.UploadVerified = true

	retention := NewRetentionManager(r.deps.Store, RetentionPolicy{MaxCount: r.config.Retention.MaxCount}, log)
	retention.SetAuditHook(func(action, blob string, err error) {
		r.logger.LogRetention(ctx, action, blob, err)
	})
	result, err := retention.Apply(ctx, report.BlobName)
	if err != nil {
		report.Warnings = append(report.Warnings, err.Error())
		log.Warn(err.Error())
		return nil
	}
	report.Retention = result
	for name, message := range result.Failed {
		report.Warnings = append(report.Warnings, fmt.Sprintf("retention could not delete %s: %s", name, message))
	}

	return nil
}

func (r *Runner) extractTable(ctx context.Context, extractor *PaginatedExtractor, doc *BackupDocument, table string) TableResult {
	start := time.Now()
	extraction, err := extractor.ExtractTable(ctx, table)
	duration := time.Since(start)

	r.logger.Logger().LogTableExtraction(table, len(extraction.Rows), extraction.Pages, extraction.Ordered, duration, err)

	if err != nil {
		doc.Tables[table] = FailedSnapshot(err)
		return TableResult{
			Table:    table,
			Status:   TableStatusFailed,
			Pages:    extraction.Pages,
			Ordered:  extraction.Ordered,
			Error:    err.Error(),
			Duration: duration,
		}
	}

	doc.Tables[table] = SuccessSnapshot(r.config.Sanitization.Apply(table, extraction.Rows))
	return TableResult{
		Table:    table,
		Status:   TableStatusOK,
		Rows:     len(extraction.Rows),
		Pages:    extraction.Pages,
		Ordered:  extraction.Ordered,
		Duration: duration,
	}
}

// sealAndVerify encrypts doc and proves the blob decrypts back to the same
// plaintext. A mismatch is fatal; nothing is uploaded.
func (r *Runner) sealAndVerify(cipher *Cipher, doc *BackupDocument) ([]byte, []byte, error) {
	blob, plaintext, err := r.seal(cipher, doc)
	if err != nil {
		return nil, nil, err
	}
	if err := NewIntegrityVerifier(cipher).VerifyLocal(blob, PlaintextHash(plaintext)); err != nil {
		r.logger.Logger().WithField("error", err.Error()).Error("Local verification failed, aborting before upload")
		return nil, nil, err
	}
	return blob, plaintext, nil
}

// unusedBlobName returns the name for a blob created at created. When a blob
// of that name is already stored the timestamp is moved on a millisecond at
// a time, so an upload never replaces an earlier run.
func (r *Runner) unusedBlobName(ctx context.Context, created time.Time) (string, error) {
	objects, err := r.deps.Store.List(ctx)
	if err != nil {
		return "", NewStorageError("failed to list stored blobs", err)
	}
	taken := make(map[string]struct{}, len(objects))
	for _, object := range objects {
		taken[object.Name] = struct{}{}
	}

	name := BlobName(created)
	for {
		if _, ok := taken[name]; !ok {
			return name, nil
		}
		r.logger.Logger().WithField("blob", name).Warn("Blob name already taken")
		created = created.Add(time.Millisecond)
		name = BlobName(created)
	}
}

// uploadAndVerify uploads blob and checks the stored copy. A blob failing
// the check is uploaded once more before it is declared untrustworthy.
func (r *Runner) uploadAndVerify(ctx context.Context, verifier *IntegrityVerifier, name string, blob []byte, hash string) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := r.deps.Store.Upload(ctx, name, blob); err != nil {
			return NewStorageError(fmt.Sprintf("failed to upload %s", name), err)
		}
		if err := verifier.VerifyUploaded(ctx, r.deps.Store, name, hash); err != nil {
			lastErr = err
			r.logger.Logger().WithFields(map[string]interface{}{
				"blob":    name,
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Post-upload verification failed")
			continue
		}
		return nil
	}
	return lastErr
}

// Restore writes one tenant's rows from a blob back into the live database.
// Without Confirm nothing is written and the report lists what would be
// deleted and inserted. The report is returned whenever the blob was read;
// an error is also returned when any table failed.
func (r *Runner) Restore(ctx context.Context, opts RestoreOptions) (*RestoreReport, error) {
	ctx = logging.ContextWithRunID(ctx, r.logger.GetCorrelationID())

	done := r.logger.LogRestoreStart(ctx, opts.TenantID, opts.Blob, !opts.Confirm)
	report, err := r.restore(ctx, opts)
	if report != nil {
		report.Finished = r.now().UTC()
	}
	done(err, report)
	if r.metrics != nil {
		r.metrics.RecordRestore(report, err)
	}

	return report, err
}

func (r *Runner) restore(ctx context.Context, opts RestoreOptions) (*RestoreReport, error) {
	tenantID := strings.TrimSpace(opts.TenantID)
	if tenantID == "" {
		return nil, NewValidationError("tenant id is required", nil)
	}
	if r.deps.Writer == nil {
		return nil, NewConfigurationError("restore requires a tenant writer", nil)
	}

	cipher, err := NewCipher(r.config.Encryption.Passphrase)
	if err != nil {
		return nil, err
	}

	name := opts.Blob
	if name == "" {
		name, err = r.newestBlob(ctx)
		if err != nil {
			return nil, err
		}
	}

	doc, err := r.loadDocument(ctx, cipher, name)
	if err != nil {
		return nil, err
	}

	restoreConfig := r.config.Restore
	if !TenantKnown(doc, tenantID, restoreConfig.TenantTable, restoreConfig.TenantKey, restoreConfig.TenantColumn) {
		return nil, &UnknownTenantError{TenantID: tenantID, Blob: name}
	}

	selection := SelectForTenant(doc, tenantID, SelectorOptions{
		TenantColumn: restoreConfig.TenantColumn,
		GlobalTables: restoreConfig.GlobalTables,
		Tables:       opts.Tables,
	})

	report := &RestoreReport{
		TenantID: tenantID,
		Blob:     name,
		DryRun:   !opts.Confirm,
		Started:  r.now().UTC(),
		Skipped:  selection.Skipped,
	}

	restorer := NewRestorerFromConfig(r.deps.Writer, restoreConfig, r.logger.Logger())
	restorer.SetReporter(r.reporter)

	if !opts.Confirm {
		report.Tables = restorer.Plan(ctx, selection)
		return report, nil
	}

	report.Tables = restorer.Restore(ctx, selection)
	if failed := report.FailedTables(); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, t := range failed {
			names = append(names, t.Table)
		}
		return report, NewRestoreError(
			fmt.Sprintf("restore of tenant %s failed for tables: %s", tenantID, strings.Join(names, ", ")), nil).
			WithContext("tables", names)
	}
	return report, nil
}

// loadDocument downloads and opens a blob. Legacy blobs hold the plaintext
// document.
func (r *Runner) loadDocument(ctx context.Context, cipher *Cipher, name string) (*BackupDocument, error) {
	data, err := r.deps.Store.Download(ctx, name)
	if err != nil {
		return nil, err
	}

	if kind, _ := ParseBlobName(name); kind == BlobKindLegacy {
		return DecodeDocument(data)
	}

	doc, _, err := cipher.OpenDocument(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *Runner) newestBlob(ctx context.Context) (string, error) {
	blobs, err := r.ListBlobs(ctx)
	if err != nil {
		return "", err
	}
	for _, blob := range blobs {
		if blob.Kind == BlobKindEncrypted {
			return blob.Name, nil
		}
	}
	return "", NewNotFoundError("no encrypted backup found", nil)
}

// ListBlobs returns every stored blob, newest first
func (r *Runner) ListBlobs(ctx context.Context) ([]BlobInfo, error) {
	objects, err := r.deps.Store.List(ctx)
	if err != nil {
		return nil, NewStorageError("failed to list blobs", err)
	}
	return DescribeObjects(objects), nil
}
