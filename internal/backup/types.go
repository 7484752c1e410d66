package backup

import (
	"time"
)

// DocumentVersion is the version written by new runs
const DocumentVersion = 2

// BackupDocument is the plaintext content of one backup blob. It is built
// fresh on every run and never persisted unencrypted.
type BackupDocument struct {
	Version int
	Created time.Time
	Tables  map[string]TableSnapshot
}

// TableSnapshot is either a success (rows extracted) or a failure (error
// message, no rows), never both.
type TableSnapshot struct {
	Data  []Row
	Error string
}

// SuccessSnapshot records extracted rows. A nil slice becomes an empty one so
// an empty table is still a success.
func SuccessSnapshot(rows []Row) TableSnapshot {
	if rows == nil {
		rows = []Row{}
	}
	return TableSnapshot{Data: rows}
}

// FailedSnapshot records a table whose extraction failed
func FailedSnapshot(err error) TableSnapshot {
	message := "extraction failed"
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return TableSnapshot{Error: message}
}

// Succeeded reports whether the snapshot holds rows
func (s TableSnapshot) Succeeded() bool {
	return s.Error == ""
}

// Count returns the number of rows; zero for failures
func (s TableSnapshot) Count() int {
	if !s.Succeeded() {
		return 0
	}
	return len(s.Data)
}

// NewDocument returns an empty current-version document
func NewDocument(created time.Time) *BackupDocument {
	return &BackupDocument{
		Version: DocumentVersion,
		Created: created.UTC(),
		Tables:  make(map[string]TableSnapshot),
	}
}

// TableStatus is the outcome of extracting one table
type TableStatus string

const (
	TableStatusOK     TableStatus = "ok"
	TableStatusFailed TableStatus = "failed"
)

// TableResult is the per-table line of a backup run
type TableResult struct {
	Table    string        `json:"table"`
	Status   TableStatus   `json:"status"`
	Rows     int           `json:"rows"`
	Pages    int           `json:"pages"`
	Ordered  bool          `json:"ordered"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport aggregates everything a backup run did. Recoverable problems
// (failed tables, fallback discovery, missing critical tables) end up here
// instead of aborting the run.
type RunReport struct {
	RunID             string           `json:"run_id"`
	Started           time.Time        `json:"started"`
	Finished          time.Time        `json:"finished"`
	DryRun            bool             `json:"dry_run"`
	DiscoveryStrategy string           `json:"discovery_strategy"`
	Tables            []TableResult    `json:"tables"`
	Warnings          []string         `json:"warnings,omitempty"`
	MissingCritical   []string         `json:"missing_critical,omitempty"`
	BlobName          string           `json:"blob_name"`
	PlaintextSize     int64            `json:"plaintext_size"`
	CompressedSize    int64            `json:"compressed_size"`
	Hash              string           `json:"hash"`
	LocallyVerified   bool             `json:"locally_verified"`
	Uploaded          bool             `json:"uploaded"`
	UploadVerified    bool             `json:"upload_verified"`
	Untrustworthy     bool             `json:"untrustworthy"`
	Retention         *RetentionResult `json:"retention,omitempty"`
}

// Succeeded returns the number of tables extracted successfully
func (r *RunReport) Succeeded() int {
	count := 0
	for _, t := range r.Tables {
		if t.Status == TableStatusOK {
			count++
		}
	}
	return count
}

// Failed returns the number of tables whose extraction failed
func (r *RunReport) Failed() int {
	return len(r.Tables) - r.Succeeded()
}

// TotalRows returns the number of rows across successful tables
func (r *RunReport) TotalRows() int {
	total := 0
	for _, t := range r.Tables {
		total += t.Rows
	}
	return total
}

// HashPrefix returns the leading characters of the plaintext hash
func (r *RunReport) HashPrefix() string {
	return shortHash(r.Hash)
}

// RestoreState is the per-table restore state machine:
// pending -> deleting-existing -> inserting -> done | failed
type RestoreState string

const (
	RestoreStatePending   RestoreState = "pending"
	RestoreStateDeleting  RestoreState = "deleting-existing"
	RestoreStateInserting RestoreState = "inserting"
	RestoreStateDone      RestoreState = "done"
	RestoreStateFailed    RestoreState = "failed"
	// RestoreStatePlanned marks a table in a dry run; nothing was written.
	RestoreStatePlanned   RestoreState = "planned"
)

// TableRestore is the outcome of restoring one table. Deleted and Inserted
// hold partial progress when State is failed.
type TableRestore struct {
	Table    string       `json:"table"`
	State    RestoreState `json:"state"`
	Rows     int          `json:"rows"`
	Existing int64        `json:"existing"`
	Deleted  int64        `json:"deleted"`
	Inserted int64        `json:"inserted"`
	// FailedIn is the state the table was in when it failed.
	FailedIn RestoreState `json:"failed_in,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// RestoreReport enumerates exactly which tables were restored. Restore is
// not atomic across tables, so callers must inspect it.
type RestoreReport struct {
	TenantID string            `json:"tenant_id"`
	Blob     string            `json:"blob"`
	DryRun   bool              `json:"dry_run"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Tables   []TableRestore    `json:"tables"`
	Skipped  map[string]string `json:"skipped,omitempty"`
}

// HasFailures reports whether any table ended in the failed state
func (r *RestoreReport) HasFailures() bool {
	return len(r.FailedTables()) > 0
}

// FailedTables returns the tables that ended in the failed state
func (r *RestoreReport) FailedTables() []TableRestore {
	var failed []TableRestore
	for _, t := range r.Tables {
		if t.State == RestoreStateFailed {
			failed = append(failed, t)
		}
	}
	return failed
}

// TotalInserted returns the number of rows written across tables
func (r *RestoreReport) TotalInserted() int64 {
	var total int64
	for _, t := range r.Tables {
		total += t.Inserted
	}
	return total
}

// BlobKind tells encrypted blobs from the legacy plaintext format
type BlobKind string

const (
	BlobKindEncrypted BlobKind = "encrypted"
	BlobKindLegacy    BlobKind = "legacy"
	BlobKindUnknown   BlobKind = "unknown"
)

// BlobInfo is a stored blob with its name-embedded timestamp
type BlobInfo struct {
	Name    string    `json:"name"`
	Kind    BlobKind  `json:"kind"`
	Created time.Time `json:"created"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// StorageProviderType selects the object store backend
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "LOCAL"
	StorageProviderS3    StorageProviderType = "S3"
	StorageProviderAzure StorageProviderType = "AZURE"
	StorageProviderGCS   StorageProviderType = "GCS"
)
