package database

import (
	"context"
	"database/sql"
	"time"

	"tenant-backup/internal/errors"
	"tenant-backup/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// Service opens and checks connections to the scheduling database
type Service struct {
	connectionTimeout time.Duration
	retryPolicy       errors.RetryPolicy
	logger            *logging.Logger
}

// NewService creates a database service that does not log
func NewService() *Service {
	return NewServiceWithLogger(logging.NewNopLogger())
}

// NewServiceWithLogger creates a new database service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	policy := errors.DefaultRetryPolicy()
	policy.BaseDelay = 2 * time.Second
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.LogRetry("database_connection", attempt, delay, err)
	}
	return &Service{
		connectionTimeout: 30 * time.Second,
		retryPolicy:       policy,
		logger:            logger,
	}
}

// WithRetryPolicy replaces the connection retry policy
func (s *Service) WithRetryPolicy(policy errors.RetryPolicy) *Service {
	if policy.OnRetry == nil {
		policy.OnRetry = s.retryPolicy.OnRetry
	}
	s.retryPolicy = policy
	return s
}

// Connect establishes a connection to the MySQL database with retry logic
func (s *Service) Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfig, "invalid database configuration", err)
	}

	dsn, err := config.FormatDSN()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfig, "invalid database configuration", err)
	}

	host, name := config.Target()
	started := time.Now()

	s.logger.WithFields(map[string]interface{}{
		"host":     host,
		"database": name,
	}).Info("Attempting database connection")

	var db *sql.DB
	err = s.retryPolicy.Do(ctx, func(ctx context.Context) error {
		conn, openErr := sql.Open("mysql", dsn)
		if openErr != nil {
			return errors.WrapError(openErr, "failed to open database connection")
		}

		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)

		if pingErr := s.TestConnection(ctx, conn); pingErr != nil {
			conn.Close()
			return pingErr
		}

		db = conn
		return nil
	})

	s.logger.LogDatabaseConnection(dsn, time.Since(started), err)
	if err != nil {
		return nil, err
	}

	if version, err := s.GetVersion(ctx, db); err == nil {
		s.logger.WithFields(map[string]interface{}{
			"database": name,
			"version":  version,
		}).Info("Reading from MySQL server")
	}
	return db, nil
}

// TestConnection verifies that the database connection is working
func (s *Service) TestConnection(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// Close gracefully closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		return nil
	}

	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}

	s.logger.Debug("Database connection closed")
	return nil
}

// GetVersion retrieves the MySQL server version
func (s *Service) GetVersion(ctx context.Context, db *sql.DB) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}
	return version, nil
}
