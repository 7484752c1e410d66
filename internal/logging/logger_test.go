package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name:   "default config",
			config: Config{Level: LogLevelNormal, Format: "text"},
			want:   LogLevelNormal,
		},
		{
			name:   "verbose config",
			config: Config{Level: LogLevelVerbose, Format: "json"},
			want:   LogLevelVerbose,
		},
		{
			name:   "quiet config",
			config: Config{Level: LogLevelQuiet, Format: "text"},
			want:   LogLevelQuiet,
		},
		{
			name:   "unknown level falls back to normal",
			config: Config{Level: "chatty"},
			want:   LogLevelNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			if logger.Level() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.Level(), tt.want)
			}
		})
	}
}

func TestNewLoggerWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	var buf bytes.Buffer

	logger, err := NewLogger(Config{Level: LogLevelNormal, Format: "json", Output: &buf, LogFile: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("run started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "run started") || !strings.Contains(buf.String(), "run started") {
		t.Errorf("Expected message in both outputs, file=%q out=%q", data, buf.String())
	}
}

func TestNewLoggerBadLogFile(t *testing.T) {
	_, err := NewLogger(Config{LogFile: filepath.Join(t.TempDir(), "missing", "backup.log")})
	if err == nil {
		t.Fatal("Expected error for unwritable log file")
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelNormal, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithFields(map[string]interface{}{"table": "kunder", "rows": 3}).Info("extracted")

	output := buf.String()
	if !strings.Contains(output, `"table":"kunder"`) {
		t.Errorf("Expected table field in output, got %s", output)
	}
	if !strings.Contains(output, `"rows":3`) {
		t.Errorf("Expected rows field in output, got %s", output)
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Format: "json", Output: &buf})

	ctx := ContextWithRunID(context.Background(), "run-42")
	logger.WithContext(ctx).Info("hello")

	if !strings.Contains(buf.String(), `"run_id":"run-42"`) {
		t.Errorf("Expected run_id in output, got %s", buf.String())
	}

	if got := RunIDFromContext(context.Background()); got != "" {
		t.Errorf("Expected empty run id, got %q", got)
	}
}

func TestLogTableExtraction(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelVerbose, Format: "json", Output: &buf})

	logger.LogTableExtraction("kunder", 1500, 2, true, 10*time.Millisecond, nil)
	if !strings.Contains(buf.String(), "Table extracted") {
		t.Errorf("Expected success message, got %s", buf.String())
	}

	buf.Reset()
	logger.LogTableExtraction("avtaler", 0, 1, false, time.Millisecond, errors.New("timeout"))
	output := buf.String()
	if !strings.Contains(output, "Table extraction failed") || !strings.Contains(output, "timeout") {
		t.Errorf("Expected failure message with error, got %s", output)
	}
}

func TestLogDatabaseConnectionMasksPassword(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Format: "json", Output: &buf})

	logger.LogDatabaseConnection("app:s3cret@tcp(db:3306)/planner", time.Second, errors.New("refused"))

	output := buf.String()
	if strings.Contains(output, "s3cret") {
		t.Errorf("Password leaked into log: %s", output)
	}
	if !strings.Contains(output, "Database connection failed") {
		t.Errorf("Expected failure message, got %s", output)
	}
}

func TestQuietLevelDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf})

	logger.SetLevel(LogLevelQuiet)
	logger.Info("hidden")
	logger.Error("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Expected info to be dropped in quiet mode, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected error to be logged in quiet mode, got %s", buf.String())
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "mysql dsn",
			dsn:  "app:s3cret@tcp(db:3306)/planner?parseTime=true",
			want: "app:xxxxx@tcp(db:3306)/planner?parseTime=true",
		},
		{
			name: "url form",
			dsn:  "mysql://app:s3cret@db:3306/planner",
			want: "mysql://app:xxxxx@db:3306/planner",
		},
		{
			name: "no password",
			dsn:  "tcp(db:3306)/planner",
			want: "tcp(db:3306)/planner",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskDSN(tt.dsn); got != tt.want {
				t.Errorf("MaskDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
