// Package backup provides the encrypted backup and tenant restore pipeline
// for the multi-tenant scheduling database.
//
// A backup run discovers the tables of the source database, extracts each
// one page by page, redacts configured fields, and builds a versioned JSON
// document. The document is gzip compressed and sealed with AES-256-GCM
// under a key derived from a passphrase, then verified twice: once in memory
// before upload and once after downloading the stored copy. Only a verified
// run applies the retention policy.
//
// Core Components:
//
// - Runner: orchestrates backup runs, tenant restores and blob listings
// - SchemaSource: catalog discovery with a static fallback list
// - PaginatedExtractor: ordered page reads with an unordered fallback
// - Cipher and IntegrityVerifier: blob sealing and round-trip proof
// - ObjectStore: local directory, S3, Azure Blob and GCS backends
// - RetentionManager: the only component that deletes blobs
// - Restorer: per-table delete and reinsert of one tenant's rows
//
// Example usage:
//
//	store, err := backup.NewObjectStore(ctx, config.Storage)
//	if err != nil {
//		return err
//	}
//
//	runner, err := backup.NewRunner(config, backup.RunnerDependencies{
//		Catalog: dbStore,
//		Reader:  dbStore,
//		Writer:  dbStore,
//		Store:   backup.NewRetryingStore(store, errors.DefaultRetryPolicy(), logger),
//	}, backupLogger)
//	if err != nil {
//		return err
//	}
//
//	report, err := runner.Backup(ctx, backup.BackupOptions{})
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
//
//	restore, err := runner.Restore(ctx, backup.RestoreOptions{TenantID: "7", Confirm: true})
package backup
