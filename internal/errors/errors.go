package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrorType is the category a failure is reported and retried under
type ErrorType string

const (
	ErrorTypeConnection   ErrorType = "connection"
	ErrorTypeSQL          ErrorType = "sql"
	ErrorTypeSchema       ErrorType = "schema" // missing table or column
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeInterruption ErrorType = "interruption"
	ErrorTypeUnknown      ErrorType = "unknown"
)

const mysqlUnknownColumn = 1054

// mysqlRule is how one MySQL server error number is reported
type mysqlRule struct {
	kind        ErrorType
	message     string
	recoverable bool
}

var mysqlRules = map[uint16]mysqlRule{
	1045:               {ErrorTypePermission, "Database access denied - check username and password", false},
	1049:               {ErrorTypeValidation, "Database does not exist", false},
	mysqlUnknownColumn: {ErrorTypeSchema, "Column does not exist", false},
	1062:               {ErrorTypeValidation, "Duplicate entry - record already exists", false},
	1064:               {ErrorTypeSQL, "SQL syntax error", false},
	1146:               {ErrorTypeSchema, "Table does not exist", false},
	1205:               {ErrorTypeTimeout, "Lock wait timeout - statement can be retried", true},
	1213:               {ErrorTypeTimeout, "Deadlock - statement can be retried", true},
	2003:               {ErrorTypeConnection, "MySQL server unreachable", true},
	2006:               {ErrorTypeConnection, "MySQL server has gone away", true},
	2013:               {ErrorTypeConnection, "Lost connection to MySQL server", true},
}

// AppError is a classified failure with structured context for the audit log
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether repeating the operation may succeed
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext attaches a key to the error and returns it for chaining
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a non-recoverable error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewRecoverableError creates an error the retry policy may repeat
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	e := NewAppError(errorType, message, cause)
	e.Recoverable = true
	return e
}

func newClassified(kind ErrorType, message string, recoverable bool, cause error) *AppError {
	e := NewAppError(kind, message, cause)
	e.Recoverable = recoverable
	return e
}

// Classify maps err onto an AppError. Errors that are already classified are
// returned as is. Anything unrecognised, which includes the object store SDK
// errors, is treated as recoverable so the retry bound decides.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, classify := range []func(error) *AppError{classifyMySQL, classifyDriver, classifyNetwork, classifyContext} {
		if classified := classify(err); classified != nil {
			return classified
		}
	}
	return NewRecoverableError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

func classifyMySQL(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return nil
	}
	rule, ok := mysqlRules[mysqlErr.Number]
	if !ok {
		rule = mysqlRule{kind: ErrorTypeSQL, message: fmt.Sprintf("MySQL error: %s", mysqlErr.Message)}
	}
	return newClassified(rule.kind, rule.message, rule.recoverable, err).
		WithContext("mysql_error_code", mysqlErr.Number)
}

func classifyDriver(err error) *AppError {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewAppError(ErrorTypeValidation, "No rows found", err)
	case errors.Is(err, sql.ErrTxDone):
		return NewAppError(ErrorTypeSQL, "Transaction has already been committed or rolled back", err)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, mysql.ErrInvalidConn):
		return NewRecoverableError(ErrorTypeConnection, "Database connection is closed", err)
	}
	return nil
}

func classifyNetwork(err error) *AppError {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return NewRecoverableError(ErrorTypeConnection, "Failed to establish network connection", err)
		case "read", "write":
			return NewRecoverableError(ErrorTypeConnection, "Network I/O error", err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewRecoverableError(ErrorTypeTimeout, "Network operation timed out", err)
	}
	return nil
}

func classifyContext(err error) *AppError {
	switch {
	case errors.Is(err, context.Canceled):
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewRecoverableError(ErrorTypeTimeout, "Operation timed out", err)
	}
	return nil
}

// IsUnknownColumn reports whether err is MySQL error 1054
func IsUnknownColumn(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlUnknownColumn
}

// IsRecoverableError reports whether err is a recoverable AppError
func IsRecoverableError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.IsRecoverable()
}

// GetErrorType returns the type of the outermost AppError in err
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// WrapError classifies err and replaces its message, keeping the cause chain
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return newClassified(appErr.Type, message, appErr.Recoverable, err)
	}

	classified := Classify(err)
	classified.Message = message
	return classified
}
