package backup

import (
	"context"
	"errors"
	"fmt"
)

// BackupErrorType is the failure category shown in reports and the audit log
type BackupErrorType string

const (
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
	BackupErrorTypeCompression   BackupErrorType = "COMPRESSION_ERROR"
	BackupErrorTypeEncryption    BackupErrorType = "ENCRYPTION_ERROR"
	BackupErrorTypeCorruption    BackupErrorType = "CORRUPTION_ERROR"
	BackupErrorTypePermission    BackupErrorType = "PERMISSION_ERROR"
	BackupErrorTypeNetwork       BackupErrorType = "NETWORK_ERROR"
	BackupErrorTypeDatabase      BackupErrorType = "DATABASE_ERROR"
	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeNotFound      BackupErrorType = "NOT_FOUND_ERROR"
	BackupErrorTypePartialData   BackupErrorType = "PARTIAL_DATA_ERROR"
	BackupErrorTypeRestore       BackupErrorType = "RESTORE_ERROR"
)

// permanentTypes are failures a retry cannot fix
var permanentTypes = map[BackupErrorType]bool{
	BackupErrorTypeValidation:    true,
	BackupErrorTypeCorruption:    true,
	BackupErrorTypeConfiguration: true,
	BackupErrorTypePermission:    true,
	BackupErrorTypeNotFound:      true,
}

// BackupError is a categorised failure of a backup run, a restore or a store call
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func newBackupError(kind BackupErrorType) func(message string, cause error) *BackupError {
	return func(message string, cause error) *BackupError {
		return &BackupError{Type: kind, Message: message, Cause: cause, Context: map[string]interface{}{}}
	}
}

var (
	NewStorageError       = newBackupError(BackupErrorTypeStorage)
	NewValidationError    = newBackupError(BackupErrorTypeValidation)
	NewCompressionError   = newBackupError(BackupErrorTypeCompression)
	NewEncryptionError    = newBackupError(BackupErrorTypeEncryption)
	NewPermissionError    = newBackupError(BackupErrorTypePermission)
	NewNetworkError       = newBackupError(BackupErrorTypeNetwork)
	NewDatabaseError      = newBackupError(BackupErrorTypeDatabase)
	NewConfigurationError = newBackupError(BackupErrorTypeConfiguration)
	NewNotFoundError      = newBackupError(BackupErrorTypeNotFound)
	NewPartialDataError   = newBackupError(BackupErrorTypePartialData)
	NewRestoreError       = newBackupError(BackupErrorTypeRestore)
)

func (e *BackupError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
}

func (e *BackupError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key to the error and returns it for chaining
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// CorruptBackupError is returned when a blob or the document inside it
// cannot be trusted. Nothing read from such a blob may be used.
type CorruptBackupError struct {
	Stage string
	Cause error
}

func (e *CorruptBackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("CORRUPTION_ERROR: corrupt backup (%s): %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("CORRUPTION_ERROR: corrupt backup (%s)", e.Stage)
}

func (e *CorruptBackupError) Unwrap() error {
	return e.Cause
}

func newCorruptBackupError(stage string, cause error) *CorruptBackupError {
	return &CorruptBackupError{Stage: stage, Cause: cause}
}

// LocalVerificationError means the freshly encrypted blob did not decrypt
// back to the original plaintext. The run is aborted and the blob is never
// uploaded.
type LocalVerificationError struct {
	ExpectedHash string
	ActualHash   string
	Cause        error
}

func (e *LocalVerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("local verification failed: %v", e.Cause)
	}
	return fmt.Sprintf("local verification failed: hash %s does not match %s",
		shortHash(e.ActualHash), shortHash(e.ExpectedHash))
}

func (e *LocalVerificationError) Unwrap() error {
	return e.Cause
}

// UploadVerificationError means the uploaded blob, downloaded again, did not
// match the original plaintext. The blob is untrustworthy and must be
// re-uploaded.
type UploadVerificationError struct {
	Blob         string
	ExpectedHash string
	ActualHash   string
	Cause        error
}

func (e *UploadVerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("post-upload verification of %s failed: %v", e.Blob, e.Cause)
	}
	return fmt.Sprintf("post-upload verification of %s failed: hash %s does not match %s",
		e.Blob, shortHash(e.ActualHash), shortHash(e.ExpectedHash))
}

func (e *UploadVerificationError) Unwrap() error {
	return e.Cause
}

// UnknownTenantError is returned by restore when the backup holds no trace of
// the requested tenant.
type UnknownTenantError struct {
	TenantID string
	Blob     string
}

func (e *UnknownTenantError) Error() string {
	return fmt.Sprintf("tenant %s not found in backup %s", e.TenantID, e.Blob)
}

// IsPermanent reports whether repeating the failed call cannot help
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}

	var corrupt *CorruptBackupError
	var local *LocalVerificationError
	var upload *UploadVerificationError
	if errors.As(err, &corrupt) || errors.As(err, &local) || errors.As(err, &upload) {
		return true
	}

	var backupErr *BackupError
	return errors.As(err, &backupErr) && permanentTypes[backupErr.Type]
}

// IsRetryable reports whether a failed object store or extraction call may be repeated
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}

// IsCorrupt reports whether err marks a blob as unusable
func IsCorrupt(err error) bool {
	var corrupt *CorruptBackupError
	if errors.As(err, &corrupt) {
		return true
	}
	var backupErr *BackupError
	return errors.As(err, &backupErr) && backupErr.Type == BackupErrorTypeCorruption
}

// ValidationError represents validation-specific errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Err returns the collection as an error, or nil when it is empty
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
