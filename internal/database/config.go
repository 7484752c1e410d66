package database

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DatabaseConfig holds the configuration parameters for the scheduling database
type DatabaseConfig struct {
	// DSN takes precedence over the discrete fields when set.
	DSN      string        `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"-"`
	Database string        `mapstructure:"database" yaml:"database"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	if dc.DSN != "" {
		if _, err := mysql.ParseDSN(dc.DSN); err != nil {
			return fmt.Errorf("database configuration validation failed: invalid dsn: %w", err)
		}
		return nil
	}

	var errs []error

	if dc.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}

	if dc.Port <= 0 || dc.Port > 65535 {
		errs = append(errs, errors.New("port must be between 1 and 65535"))
	}

	if dc.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}

	if dc.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}

	if dc.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (dc *DatabaseConfig) SetDefaults() {
	if dc.Port == 0 {
		dc.Port = 3306
	}
	if dc.Timeout == 0 {
		dc.Timeout = 30 * time.Second
	}
}

// LoadFromEnvironment loads credentials from environment variables
func (dc *DatabaseConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_DATABASE_DSN"); val != "" {
		dc.DSN = val
	}
	if val := os.Getenv("BACKUP_DATABASE_HOST"); val != "" {
		dc.Host = val
	}
	if val := os.Getenv("BACKUP_DATABASE_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			dc.Port = parsed
		}
	}
	if val := os.Getenv("BACKUP_DATABASE_USER"); val != "" {
		dc.Username = val
	}
	if val := os.Getenv("BACKUP_DATABASE_PASSWORD"); val != "" {
		dc.Password = val
	}
	if val := os.Getenv("BACKUP_DATABASE_NAME"); val != "" {
		dc.Database = val
	}
}

// FormatDSN returns the Data Source Name for the MySQL driver. Times are
// parsed into time.Time and interpreted as UTC.
func (dc *DatabaseConfig) FormatDSN() (string, error) {
	var cfg *mysql.Config
	if dc.DSN != "" {
		parsed, err := mysql.ParseDSN(dc.DSN)
		if err != nil {
			return "", err
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = dc.Username
		cfg.Passwd = dc.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", dc.Host, dc.Port)
		cfg.DBName = dc.Database
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Timeout == 0 {
		cfg.Timeout = dc.Timeout
	}
	return cfg.FormatDSN(), nil
}

// Target returns host/database for logging without credentials
func (dc *DatabaseConfig) Target() (host, name string) {
	if dc.DSN != "" {
		if cfg, err := mysql.ParseDSN(dc.DSN); err == nil {
			return cfg.Addr, cfg.DBName
		}
	}
	return fmt.Sprintf("%s:%d", dc.Host, dc.Port), dc.Database
}
