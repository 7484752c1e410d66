package logging

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel is the operator-facing verbosity of the operational log
type LogLevel string

const (
	// LogLevelQuiet only logs errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal logs run milestones
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose adds per-table and retry detail
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug logs everything
	LogLevelDebug LogLevel = "debug"
)

var logrusLevels = map[LogLevel]logrus.Level{
	LogLevelQuiet:   logrus.ErrorLevel,
	LogLevelNormal:  logrus.InfoLevel,
	LogLevelVerbose: logrus.DebugLevel,
	LogLevelDebug:   logrus.TraceLevel,
}

type contextKey struct{}

// Logger is the operational log of a backup or restore run. It never carries
// row data; rows only ever leave the process encrypted.
type Logger struct {
	entry *logrus.Logger
	level LogLevel
}

// Config holds logger configuration
type Config struct {
	Level   LogLevel
	Output  io.Writer
	Format  string // "text" or "json"
	LogFile string
}

// NewLogger creates a logger writing to Output and, when set, appending to LogFile
func NewLogger(config Config) (*Logger, error) {
	base := logrus.New()
	base.SetFormatter(newFormatter(config.Format))

	var out io.Writer = os.Stderr
	if config.Output != nil {
		out = config.Output
	}
	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		out = io.MultiWriter(out, file)
	}
	base.SetOutput(out)

	l := &Logger{entry: base}
	l.SetLevel(config.Level)
	return l, nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	logger, _ := NewLogger(Config{Level: LogLevelQuiet, Output: io.Discard})
	return logger
}

// Level returns the verbosity the logger was set to
func (l *Logger) Level() LogLevel {
	return l.level
}

// SetLevel changes the verbosity. Unknown levels fall back to normal.
func (l *Logger) SetLevel(level LogLevel) {
	lv, ok := logrusLevels[level]
	if !ok {
		level, lv = LogLevelNormal, logrus.InfoLevel
	}
	l.level = level
	l.entry.SetLevel(lv)
}

// WithContext returns an entry tagged with the run id carried by ctx
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.entry.WithContext(ctx)
	if runID := RunIDFromContext(ctx); runID != "" {
		entry = entry.WithField("run_id", runID)
	}
	return entry
}

// WithFields returns an entry with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry.WithFields(fields)
}

// WithField returns an entry with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry.WithField(key, value)
}

func (l *Logger) Info(msg string) { l.entry.Info(msg) }
func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }
func (l *Logger) Warn(msg string) { l.entry.Warn(msg) }
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

// LogDatabaseConnection records the outcome of connecting to target, which
// is masked before it is logged
func (l *Logger) LogDatabaseConnection(target string, duration time.Duration, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"operation": "database_connection",
		"target":    MaskDSN(target),
		"duration":  duration.String(),
	})
	if err != nil {
		entry.WithField("error", err.Error()).Error("Database connection failed")
		return
	}
	entry.Info("Database connection established")
}

// LogTableExtraction records how one table was paged out of the database
func (l *Logger) LogTableExtraction(table string, rows int, pages int, ordered bool, duration time.Duration, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"operation": "table_extraction",
		"table":     table,
		"rows":      rows,
		"pages":     pages,
		"ordered":   ordered,
		"duration":  duration.String(),
	})
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Table extraction failed")
		return
	}
	entry.Debug("Table extracted")
}

// LogRetry records a transient failure that is about to be retried
func (l *Logger) LogRetry(operation string, attempt int, delay time.Duration, err error) {
	l.entry.WithFields(logrus.Fields{
		"operation": operation,
		"attempt":   attempt,
		"delay":     delay.String(),
		"error":     err.Error(),
	}).Warn("Transient failure, retrying")
}

// ContextWithRunID attaches a run id for log correlation
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKey{}, runID)
}

// RunIDFromContext returns the run id attached by ContextWithRunID
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

var dsnPasswordPattern = regexp.MustCompile(`^([^:/@]+):([^@]*)@`)

// MaskDSN hides the password of a MySQL DSN or URL
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	return dsnPasswordPattern.ReplaceAllString(dsn, "$1:xxxxx@")
}
