package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader handles loading and parsing the pipeline configuration
type ConfigLoader struct {
	configPath string
	overrides  []func(*Config)
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// WithOverride registers fn to run after the file and environment are
// applied and before validation. Command line flags use it.
func (cl *ConfigLoader) WithOverride(fn func(*Config)) *ConfigLoader {
	cl.overrides = append(cl.overrides, fn)
	return cl
}

// LoadConfig loads the configuration from file and environment variables.
// Secrets only ever come from the environment.
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	config := &Config{}

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, NewConfigurationError("failed to load config from file", err)
		}
	}

	config.SetDefaults()
	config.LoadFromEnvironment()
	for _, override := range cl.overrides {
		override(config)
	}

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("configuration validation failed", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file. A missing file leaves
// the defaults in place.
func (cl *ConfigLoader) loadFromFile(config *Config) error {
	if _, err := os.Stat(cl.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration to the loader's path. Secrets are not
// written.
func (cl *ConfigLoader) SaveConfig(config *Config) error {
	dir := filepath.Dir(cl.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(cl.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*Config, error) {
	config := &Config{}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewConfigurationError("failed to parse YAML config", err)
	}

	config.SetDefaults()
	config.LoadFromEnvironment()

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("configuration validation failed", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	config := &Config{}
	config.SetDefaults()
	return config
}

// WriteDefaultConfig writes the commented default configuration to path.
// An existing file is only replaced when overwrite is set.
func WriteDefaultConfig(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return NewValidationError(fmt.Sprintf("config file %s already exists", path), nil)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	return os.WriteFile(path, GenerateDefaultConfigYAML(), 0600)
}

// GenerateDefaultConfigYAML returns the default configuration as YAML with comments
func GenerateDefaultConfigYAML() []byte {
	return []byte(`# tenant-backup configuration
#
# Secrets are never read from this file. Provide them through the environment:
#   BACKUP_DATABASE_DSN (or BACKUP_DATABASE_HOST/USER/PASSWORD/NAME)
#   BACKUP_ENCRYPTION_PASSPHRASE (at least 16 characters)
#   BACKUP_S3_ACCESS_KEY / BACKUP_S3_SECRET_KEY
#   BACKUP_AZURE_ACCOUNT_KEY
#   BACKUP_GCS_CREDENTIALS (key file path or key JSON)

database:
  host: localhost
  port: 3306
  database: scheduling
  timeout: 30s

# Object store: LOCAL, S3, AZURE, GCS
storage:
  provider: LOCAL
  local:
    base_path: "./backups"
    permissions: 0700

  # s3:
  #   bucket: "tenant-backups"
  #   region: "eu-north-1"
  #   prefix: "nightly"

  # azure:
  #   account_name: "backupaccount"
  #   container_name: "backups"

  # gcs:
  #   bucket: "tenant-backups"
  #   project_id: "my-project"

# Newest encrypted backups to keep. Legacy backup-<date>.json blobs are
# always removed.
retention:
  max_count: 10

extraction:
  page_size: 1000
  order_column: id
  max_attempts: 3
  retry_delay: 1s
  excluded_tables:
    - schema_migrations
    - goose_db_version
    - migrations
    - sessions
  # Used when the table catalog cannot be read
  fallback_tables:
    - organizations
    - users
    - app_settings
    - kunder
    - avtaler

# Fields replaced with "[REDACTED]" before a table is written to a backup
sanitization: {}
#  users:
#    - password_hash
#    - reset_token

# A warning is raised when any of these tables is missing or failed
critical_tables:
  - organizations
  - kunder
  - avtaler

restore:
  tenant_column: organization_id
  tenant_table: organizations
  tenant_key: id
  batch_size: 500
  global_tables:
    - organizations
    - users
    - app_settings
  priority_tables:
    - kunder
    - avtaler
`)
}
