package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPassphrase, testPassphrase)
	t.Setenv("BACKUP_DATABASE_DSN", "backup:secret@tcp(localhost:3306)/scheduling")
}

func TestConfigLoader_LoadConfig(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  provider: local
  local:
    base_path: /var/lib/tenant-backup
retention:
  max_count: 3
extraction:
  page_size: 200
sanitization:
  users:
    - password_hash
critical_tables:
  - kunder
`), 0600))

	config, err := NewConfigLoader(path).LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StorageProviderLocal, config.Storage.Provider)
	assert.Equal(t, "/var/lib/tenant-backup", config.Storage.Local.BasePath)
	assert.Equal(t, 3, config.Retention.MaxCount)
	assert.Equal(t, 200, config.Extraction.PageSize)
	assert.Equal(t, "id", config.Extraction.OrderColumn)
	assert.Equal(t, []string{"password_hash"}, config.Sanitization.Fields("users"))
	assert.Equal(t, []string{"kunder"}, config.CriticalTables)
	assert.Equal(t, testPassphrase, config.Encryption.Passphrase)
}

func TestConfigLoader_MissingFileUsesDefaults(t *testing.T) {
	setRequiredEnv(t)

	config, err := NewConfigLoader(filepath.Join(t.TempDir(), "absent.yaml")).LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxCount, config.Retention.MaxCount)
}

func TestConfigLoader_PassphraseIsNeverReadFromFile(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	t.Setenv("BACKUP_DATABASE_DSN", "backup:secret@tcp(localhost:3306)/scheduling")

	path := filepath.Join(t.TempDir(), "backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("encryption:\n  passphrase: from-the-config-file-123\n"), 0600))

	_, err := NewConfigLoader(path).LoadConfig()
	require.Error(t, err)
	assertBackupErrorType(t, err, BackupErrorTypeConfiguration)
	assert.Contains(t, err.Error(), "encryption.passphrase")
}

func TestConfigLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unterminated"), 0600))

	_, err := NewConfigLoader(path).LoadConfig()
	assertBackupErrorType(t, err, BackupErrorTypeConfiguration)
}

func TestConfigLoader_SaveConfigOmitsSecrets(t *testing.T) {
	config := validConfig(t)
	config.Storage.Provider = StorageProviderS3
	config.Storage.S3 = &S3Config{Bucket: "b", Region: "eu-north-1", AccessKey: "AKIA-SECRET", SecretKey: "s3-secret"}

	path := filepath.Join(t.TempDir(), "nested", "backup.yaml")
	require.NoError(t, NewConfigLoader(path).SaveConfig(config))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), testPassphrase)
	assert.NotContains(t, string(data), "AKIA-SECRET")
	assert.NotContains(t, string(data), "s3-secret")
	assert.Contains(t, string(data), "eu-north-1")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestGenerateDefaultConfigYAML_Loads(t *testing.T) {
	setRequiredEnv(t)

	config, err := LoadConfigFromBytes(GenerateDefaultConfigYAML())
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Retention, config.Retention)
	assert.Equal(t, defaults.Extraction, config.Extraction)
	assert.Equal(t, defaults.Restore, config.Restore)
	assert.Equal(t, defaults.CriticalTables, config.CriticalTables)
	assert.Equal(t, os.FileMode(0700), config.Storage.Local.Permissions)
	assert.Empty(t, config.Sanitization)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "backup.yaml")

	require.NoError(t, WriteDefaultConfig(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, GenerateDefaultConfigYAML(), data)

	err = WriteDefaultConfig(path, false)
	assertBackupErrorType(t, err, BackupErrorTypeValidation)

	assert.NoError(t, WriteDefaultConfig(path, true))
}

func TestConfigLoader_WithOverrideSwitchesProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BACKUP_GCS_BUCKET", "tenant-backups")

	config, err := NewConfigLoader("").
		WithOverride(func(c *Config) { c.Storage.UseProvider("gcs") }).
		LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StorageProviderGCS, config.Storage.Provider)
	require.NotNil(t, config.Storage.GCS)
	assert.Equal(t, "tenant-backups", config.Storage.GCS.Bucket)
}

func TestConfigLoader_WithOverrideIsValidated(t *testing.T) {
	setRequiredEnv(t)

	_, err := NewConfigLoader("").
		WithOverride(func(c *Config) { c.Storage.UseProvider("ftp") }).
		LoadConfig()
	assertBackupErrorType(t, err, BackupErrorTypeConfiguration)
	assert.Contains(t, err.Error(), "storage.provider")
}
