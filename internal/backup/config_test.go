package backup

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	config := newTestConfig(t)
	config.Database.DSN = "backup:secret@tcp(localhost:3306)/scheduling"
	return config
}

func validationFields(err error) []string {
	var fields []string
	if validationErrs, ok := err.(ValidationErrors); ok {
		for _, ve := range validationErrs {
			fields = append(fields, ve.Field)
		}
	}
	return fields
}

func TestConfig_SetDefaults(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, StorageProviderLocal, config.Storage.Provider)
	require.NotNil(t, config.Storage.Local)
	assert.Equal(t, DefaultLocalPath, config.Storage.Local.BasePath)
	assert.Equal(t, os.FileMode(0700), config.Storage.Local.Permissions)

	assert.Equal(t, DefaultMaxCount, config.Retention.MaxCount)
	assert.Equal(t, DefaultPageSize, config.Extraction.PageSize)
	assert.Equal(t, "id", config.Extraction.OrderColumn)
	assert.Equal(t, 3, config.Extraction.MaxAttempts)
	assert.Equal(t, time.Second, config.Extraction.RetryDelay)
	assert.Equal(t, DefaultExcludedTables(), config.Extraction.ExcludedTables)
	assert.Equal(t, DefaultFallbackTables(), config.Extraction.FallbackTables)
	assert.Equal(t, DefaultCriticalTables(), config.CriticalTables)

	assert.Equal(t, "organization_id", config.Restore.TenantColumn)
	assert.Equal(t, "organizations", config.Restore.TenantTable)
	assert.Equal(t, 500, config.Restore.BatchSize)
	assert.Equal(t, DefaultGlobalTables(), config.Restore.GlobalTables)
	assert.Equal(t, DefaultPriorityTables(), config.Restore.PriorityTables)

	assert.Equal(t, 3306, config.Database.Port)
	assert.Empty(t, config.Encryption.Passphrase)
}

func TestConfig_SetDefaultsKeepsExplicitValues(t *testing.T) {
	config := &Config{
		Storage:        StorageConfig{Provider: "s3"},
		CriticalTables: []string{},
		Extraction:     ExtractionConfig{PageSize: 50, ExcludedTables: []string{}},
	}
	config.SetDefaults()

	assert.Equal(t, StorageProviderS3, config.Storage.Provider)
	require.NotNil(t, config.Storage.S3)
	assert.Equal(t, "us-east-1", config.Storage.S3.Region)
	assert.Equal(t, 50, config.Extraction.PageSize)
	assert.Empty(t, config.Extraction.ExcludedTables)
	assert.Empty(t, config.CriticalTables)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		fields []string
	}{
		{name: "valid", modify: func(c *Config) {}},
		{
			name:   "missing passphrase",
			modify: func(c *Config) { c.Encryption.Passphrase = "" },
			fields: []string{"encryption.passphrase"},
		},
		{
			name:   "short passphrase",
			modify: func(c *Config) { c.Encryption.Passphrase = "short" },
			fields: []string{"encryption.passphrase"},
		},
		{
			name:   "retention below one",
			modify: func(c *Config) { c.Retention.MaxCount = 0 },
			fields: []string{"retention.max_count"},
		},
		{
			name: "bad extraction",
			modify: func(c *Config) {
				c.Extraction.PageSize = 0
				c.Extraction.MaxAttempts = 0
				c.Extraction.RetryDelay = -time.Second
			},
			fields: []string{"extraction.page_size", "extraction.max_attempts", "extraction.retry_delay"},
		},
		{
			name:   "unknown provider",
			modify: func(c *Config) { c.Storage.Provider = "FTP" },
			fields: []string{"storage.provider"},
		},
		{
			name: "s3 without credentials",
			modify: func(c *Config) {
				c.Storage.Provider = StorageProviderS3
				c.Storage.S3 = &S3Config{Bucket: "b", Region: "eu-north-1"}
			},
			fields: []string{"storage.s3.access_key", "storage.s3.secret_key"},
		},
		{
			name:   "empty sanitization field",
			modify: func(c *Config) { c.Sanitization = SanitizationRules{"users": {""}} },
			fields: []string{"sanitization.users"},
		},
		{
			name:   "restore without batch size",
			modify: func(c *Config) { c.Restore.BatchSize = 0 },
			fields: []string{"restore.batch_size"},
		},
		{
			name:   "missing database",
			modify: func(c *Config) { c.Database.DSN = "" },
			fields: []string{"database"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig(t)
			tt.modify(config)

			err := config.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.fields, validationFields(err))
		})
	}
}

func TestConfig_LoadFromEnvironment(t *testing.T) {
	t.Setenv(EnvPassphrase, "a-very-long-passphrase")
	t.Setenv("BACKUP_STORAGE_PROVIDER", "s3")
	t.Setenv("BACKUP_S3_BUCKET", "tenant-backups")
	t.Setenv("BACKUP_S3_ACCESS_KEY", "AKIA")
	t.Setenv("BACKUP_S3_SECRET_KEY", "secret")
	t.Setenv("BACKUP_RETENTION_MAX_COUNT", "4")
	t.Setenv("BACKUP_EXTRACTION_PAGE_SIZE", "250")
	t.Setenv("BACKUP_EXTRACTION_RETRY_DELAY", "2s")
	t.Setenv("BACKUP_DATABASE_DSN", "backup:secret@tcp(db:3306)/scheduling")

	config := DefaultConfig()
	config.LoadFromEnvironment()

	assert.Equal(t, "a-very-long-passphrase", config.Encryption.Passphrase)
	assert.Equal(t, StorageProviderS3, config.Storage.Provider)
	require.NotNil(t, config.Storage.S3)
	assert.Equal(t, "tenant-backups", config.Storage.S3.Bucket)
	assert.Equal(t, "us-east-1", config.Storage.S3.Region)
	assert.Equal(t, "AKIA", config.Storage.S3.AccessKey)
	assert.Equal(t, 4, config.Retention.MaxCount)
	assert.Equal(t, 250, config.Extraction.PageSize)
	assert.Equal(t, 2*time.Second, config.Extraction.RetryDelay)
	assert.NoError(t, config.Validate())
}

func TestGCSConfig_LoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKUP_GCS_BUCKET", "bucket")
	t.Setenv("BACKUP_GCS_CREDENTIALS", `{"type":"service_account"}`)

	gcs := &GCSConfig{}
	gcs.LoadFromEnvironment()
	assert.Equal(t, "bucket", gcs.Bucket)
	assert.Equal(t, `{"type":"service_account"}`, gcs.CredentialsJSON)
	assert.Empty(t, gcs.CredentialsPath)

	t.Setenv("BACKUP_GCS_CREDENTIALS", "/etc/gcs/key.json")
	gcs = &GCSConfig{}
	gcs.LoadFromEnvironment()
	assert.Equal(t, "/etc/gcs/key.json", gcs.CredentialsPath)
}

func TestLocalConfig_LoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKUP_LOCAL_BASE_PATH", "/var/backups")
	t.Setenv("BACKUP_LOCAL_PERMISSIONS", "750")

	local := &LocalConfig{}
	local.LoadFromEnvironment()
	assert.Equal(t, "/var/backups", local.BasePath)
	assert.Equal(t, os.FileMode(0750), local.Permissions)
}

func TestExtractionConfig_RetryPolicy(t *testing.T) {
	extraction := ExtractionConfig{MaxAttempts: 5, RetryDelay: 10 * time.Millisecond}
	policy := extraction.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, policy.BaseDelay)
}

func TestAppendValidation(t *testing.T) {
	var problems ValidationErrors

	appendValidation(&problems, "storage", nil)
	assert.Empty(t, problems)

	var nested ValidationErrors
	nested.Add("s3.bucket", "bucket is required", "")
	appendValidation(&problems, "storage", nested)
	appendValidation(&problems, "restore", errors.New("priority list is malformed"))

	require.Len(t, problems, 2)
	assert.Equal(t, "storage.s3.bucket", problems[0].Field)
	assert.Equal(t, "restore", problems[1].Field)
	assert.Equal(t, "priority list is malformed", problems[1].Message)
	assert.Equal(t, []string{"storage.s3.bucket", "restore"}, validationFields(problems.Err()))
}
