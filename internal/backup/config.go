package backup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tenant-backup/internal/database"
	apperrors "tenant-backup/internal/errors"
)

// EnvPassphrase names the environment variable holding the encryption passphrase
const EnvPassphrase = "BACKUP_ENCRYPTION_PASSPHRASE"

// Config represents the complete backup pipeline configuration
type Config struct {
	Database       database.DatabaseConfig `yaml:"database" mapstructure:"database"`
	Storage        StorageConfig           `yaml:"storage" mapstructure:"storage"`
	Retention      RetentionConfig         `yaml:"retention" mapstructure:"retention"`
	Encryption     EncryptionConfig        `yaml:"encryption" mapstructure:"encryption"`
	Extraction     ExtractionConfig        `yaml:"extraction" mapstructure:"extraction"`
	Sanitization   SanitizationRules       `yaml:"sanitization" mapstructure:"sanitization"`
	CriticalTables []string                `yaml:"critical_tables" mapstructure:"critical_tables"`
	Restore        RestoreConfig           `yaml:"restore" mapstructure:"restore"`
}

// StorageConfig selects and configures the object store
type StorageConfig struct {
	Provider StorageProviderType `yaml:"provider" mapstructure:"provider"`
	Local    *LocalConfig        `yaml:"local,omitempty" mapstructure:"local"`
	S3       *S3Config           `yaml:"s3,omitempty" mapstructure:"s3"`
	Azure    *AzureConfig        `yaml:"azure,omitempty" mapstructure:"azure"`
	GCS      *GCSConfig          `yaml:"gcs,omitempty" mapstructure:"gcs"`
}

// LocalConfig configures the directory-backed store
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" mapstructure:"base_path"`
	Permissions os.FileMode `yaml:"permissions" mapstructure:"permissions"`
}

// S3Config configures the S3 store. Endpoint is set for S3 compatible servers.
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	AccessKey string `yaml:"-" mapstructure:"access_key"`
	SecretKey string `yaml:"-" mapstructure:"secret_key"`
	Endpoint  string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Prefix    string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// AzureConfig configures the Azure Blob store
type AzureConfig struct {
	AccountName   string `yaml:"account_name" mapstructure:"account_name"`
	AccountKey    string `yaml:"-" mapstructure:"account_key"`
	ContainerName string `yaml:"container_name" mapstructure:"container_name"`
	Endpoint      string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Prefix        string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// GCSConfig configures the Google Cloud Storage store. Without credentials
// the application default credentials are used.
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	CredentialsPath string `yaml:"credentials_path,omitempty" mapstructure:"credentials_path"`
	CredentialsJSON string `yaml:"-" mapstructure:"credentials_json"`
	ProjectID       string `yaml:"project_id,omitempty" mapstructure:"project_id"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// RetentionConfig bounds how many encrypted blobs are kept
type RetentionConfig struct {
	MaxCount int `yaml:"max_count" mapstructure:"max_count"`
}

// EncryptionConfig holds the passphrase the blob key is derived from. It is
// never read from or written to a config file.
type EncryptionConfig struct {
	Passphrase string `yaml:"-" mapstructure:"passphrase"`
}

// ExtractionConfig tunes discovery and the paginated extractor
type ExtractionConfig struct {
	PageSize       int           `yaml:"page_size" mapstructure:"page_size"`
	OrderColumn    string        `yaml:"order_column" mapstructure:"order_column"`
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	ExcludedTables []string      `yaml:"excluded_tables" mapstructure:"excluded_tables"`
	FallbackTables []string      `yaml:"fallback_tables" mapstructure:"fallback_tables"`
}

// RestoreConfig describes how tenant rows are found and written back
type RestoreConfig struct {
	TenantColumn   string   `yaml:"tenant_column" mapstructure:"tenant_column"`
	TenantTable    string   `yaml:"tenant_table" mapstructure:"tenant_table"`
	TenantKey      string   `yaml:"tenant_key" mapstructure:"tenant_key"`
	GlobalTables   []string `yaml:"global_tables" mapstructure:"global_tables"`
	PriorityTables []string `yaml:"priority_tables" mapstructure:"priority_tables"`
	BatchSize      int      `yaml:"batch_size" mapstructure:"batch_size"`
}

// Default values
const (
	DefaultPageSize     = 1000
	DefaultOrderColumn  = "id"
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = time.Second
	DefaultMaxCount     = 10
	DefaultBatchSize    = 500
	DefaultTenantColumn = "organization_id"
	DefaultTenantTable  = "organizations"
	DefaultTenantKey    = "id"
	DefaultLocalPath    = "./backups"
)

// DefaultExcludedTables are infrastructure tables never backed up
func DefaultExcludedTables() []string {
	return []string{"schema_migrations", "goose_db_version", "migrations", "sessions"}
}

// DefaultFallbackTables is the static list used when the catalog is unavailable
func DefaultFallbackTables() []string {
	return []string{"organizations", "users", "app_settings", "kunder", "avtaler"}
}

// DefaultCriticalTables are the tables a trustworthy backup must contain
func DefaultCriticalTables() []string {
	return []string{"organizations", "kunder", "avtaler"}
}

// DefaultGlobalTables are shared across tenants and never restored per tenant
func DefaultGlobalTables() []string {
	return []string{"organizations", "users", "app_settings"}
}

// DefaultPriorityTables are restored first, parents before children
func DefaultPriorityTables() []string {
	return []string{"kunder", "avtaler"}
}

// Validate validates the Config
func (c *Config) Validate() error {
	var problems ValidationErrors

	if err := c.Database.Validate(); err != nil {
		problems.Add("database", err.Error(), nil)
	}

	appendValidation(&problems, "storage", c.Storage.Validate())
	appendValidation(&problems, "retention", c.Retention.Validate())
	appendValidation(&problems, "encryption", c.Encryption.Validate())
	appendValidation(&problems, "extraction", c.Extraction.Validate())
	appendValidation(&problems, "sanitization", c.Sanitization.Validate())
	appendValidation(&problems, "restore", c.Restore.Validate())

	for _, table := range c.CriticalTables {
		if strings.TrimSpace(table) == "" {
			problems.Add("critical_tables", "table name cannot be empty", table)
		}
	}

	return problems.Err()
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Storage.SetDefaults()
	c.Retention.SetDefaults()
	c.Extraction.SetDefaults()
	c.Restore.SetDefaults()

	if c.CriticalTables == nil {
		c.CriticalTables = DefaultCriticalTables()
	}
}

// LoadFromEnvironment loads configuration values from environment variables
func (c *Config) LoadFromEnvironment() {
	c.Database.LoadFromEnvironment()
	c.Storage.LoadFromEnvironment()
	c.Retention.LoadFromEnvironment()
	c.Encryption.LoadFromEnvironment()
	c.Extraction.LoadFromEnvironment()
}

func appendValidation(problems *ValidationErrors, section string, err error) {
	if err == nil {
		return
	}
	if validationErrs, ok := err.(ValidationErrors); ok {
		for _, ve := range validationErrs {
			ve.Field = section + "." + ve.Field
			*problems = append(*problems, ve)
		}
		return
	}
	problems.Add(section, err.Error(), nil)
}

// providerSection is the sub-config of one object store backend
type providerSection interface {
	Validate() error
	LoadFromEnvironment()
}

// section returns the sub-config of the selected provider and its key
func (sc *StorageConfig) section(allocate bool) (string, providerSection) {
	return sc.sectionFor(sc.Provider, allocate)
}

// sectionFor returns the sub-config of provider and its key. With allocate
// set a missing sub-config is created.
func (sc *StorageConfig) sectionFor(provider StorageProviderType, allocate bool) (string, providerSection) {
	switch provider {
	case StorageProviderLocal:
		if sc.Local == nil && allocate {
			sc.Local = &LocalConfig{}
		}
		if sc.Local != nil {
			return "local", sc.Local
		}
		return "local", nil
	case StorageProviderS3:
		if sc.S3 == nil && allocate {
			sc.S3 = &S3Config{}
		}
		if sc.S3 != nil {
			return "s3", sc.S3
		}
		return "s3", nil
	case StorageProviderAzure:
		if sc.Azure == nil && allocate {
			sc.Azure = &AzureConfig{}
		}
		if sc.Azure != nil {
			return "azure", sc.Azure
		}
		return "azure", nil
	case StorageProviderGCS:
		if sc.GCS == nil && allocate {
			sc.GCS = &GCSConfig{}
		}
		if sc.GCS != nil {
			return "gcs", sc.GCS
		}
		return "gcs", nil
	}
	return "", nil
}

// Validate checks that the selected provider is configured
func (sc *StorageConfig) Validate() error {
	var problems ValidationErrors

	key, section := sc.section(false)
	switch {
	case key == "":
		problems.Add("provider", fmt.Sprintf("invalid storage provider type, must be one of %v", SupportedProviders()), sc.Provider)
	case section == nil:
		problems.Add(key, fmt.Sprintf("%s storage configuration is required", key), nil)
	default:
		appendValidation(&problems, key, section.Validate())
	}

	return problems.Err()
}

// SetDefaults normalises the provider name and fills in the selected
// provider's defaults
func (sc *StorageConfig) SetDefaults() {
	if sc.Provider == "" {
		sc.Provider = StorageProviderLocal
	}
	sc.Provider = StorageProviderType(strings.ToUpper(string(sc.Provider)))

	if _, section := sc.section(true); section != nil {
		if defaulter, ok := section.(interface{ SetDefaults() }); ok {
			defaulter.SetDefaults()
		}
	}
}

// LoadFromEnvironment reads every configured provider's credentials so
// switching providers through BACKUP_STORAGE_PROVIDER needs no file change
func (sc *StorageConfig) LoadFromEnvironment() {
	if envString("BACKUP_STORAGE_PROVIDER", (*string)(&sc.Provider)) {
		sc.SetDefaults()
	}

	for _, provider := range SupportedProviders() {
		if _, section := sc.sectionFor(provider, false); section != nil {
			section.LoadFromEnvironment()
		}
	}
}

// UseProvider switches the backend and reads its credentials from the
// environment
func (sc *StorageConfig) UseProvider(provider StorageProviderType) {
	sc.Provider = provider
	sc.SetDefaults()
	if _, section := sc.section(false); section != nil {
		section.LoadFromEnvironment()
	}
}

// Validate validates the LocalConfig
func (lc *LocalConfig) Validate() error {
	var problems ValidationErrors

	if lc.BasePath == "" {
		problems.Add("base_path", "base path is required for local storage", lc.BasePath)
	}

	if lc.Permissions == 0 {
		lc.Permissions = 0700
	}

	return problems.Err()
}

// SetDefaults sets default values for local storage
func (lc *LocalConfig) SetDefaults() {
	if lc.BasePath == "" {
		lc.BasePath = DefaultLocalPath
	}
	if lc.Permissions == 0 {
		lc.Permissions = 0700
	}
}

// LoadFromEnvironment reads BACKUP_LOCAL_* variables. Permissions are octal.
func (lc *LocalConfig) LoadFromEnvironment() {
	envString("BACKUP_LOCAL_BASE_PATH", &lc.BasePath)

	var perm string
	if envString("BACKUP_LOCAL_PERMISSIONS", &perm) {
		if parsed, err := strconv.ParseUint(perm, 8, 32); err == nil {
			lc.Permissions = os.FileMode(parsed)
		}
	}
}

// Validate validates the S3Config
func (s3c *S3Config) Validate() error {
	var problems ValidationErrors

	if s3c.Bucket == "" {
		problems.Add("bucket", "S3 bucket name is required", s3c.Bucket)
	}

	if s3c.Region == "" {
		problems.Add("region", "S3 region is required", s3c.Region)
	}

	if s3c.AccessKey == "" {
		problems.Add("access_key", "S3 access key is required (BACKUP_S3_ACCESS_KEY)", nil)
	}

	if s3c.SecretKey == "" {
		problems.Add("secret_key", "S3 secret key is required (BACKUP_S3_SECRET_KEY)", nil)
	}

	return problems.Err()
}

// SetDefaults sets default values for S3 storage
func (s3c *S3Config) SetDefaults() {
	if s3c.Region == "" {
		s3c.Region = "us-east-1"
	}
}

// LoadFromEnvironment reads BACKUP_S3_* variables
func (s3c *S3Config) LoadFromEnvironment() {
	envString("BACKUP_S3_BUCKET", &s3c.Bucket)
	envString("BACKUP_S3_REGION", &s3c.Region)
	envString("BACKUP_S3_ACCESS_KEY", &s3c.AccessKey)
	envString("BACKUP_S3_SECRET_KEY", &s3c.SecretKey)
	envString("BACKUP_S3_ENDPOINT", &s3c.Endpoint)
}

// Validate validates the AzureConfig
func (ac *AzureConfig) Validate() error {
	var problems ValidationErrors

	if ac.AccountName == "" {
		problems.Add("account_name", "Azure account name is required", ac.AccountName)
	}

	if ac.AccountKey == "" {
		problems.Add("account_key", "Azure account key is required (BACKUP_AZURE_ACCOUNT_KEY)", nil)
	}

	if ac.ContainerName == "" {
		problems.Add("container_name", "Azure container name is required", ac.ContainerName)
	}

	return problems.Err()
}

// LoadFromEnvironment reads BACKUP_AZURE_* variables
func (ac *AzureConfig) LoadFromEnvironment() {
	envString("BACKUP_AZURE_ACCOUNT_NAME", &ac.AccountName)
	envString("BACKUP_AZURE_ACCOUNT_KEY", &ac.AccountKey)
	envString("BACKUP_AZURE_CONTAINER_NAME", &ac.ContainerName)
}

// Validate validates the GCSConfig
func (gc *GCSConfig) Validate() error {
	var problems ValidationErrors

	if gc.Bucket == "" {
		problems.Add("bucket", "GCS bucket name is required", gc.Bucket)
	}

	return problems.Err()
}

// LoadFromEnvironment reads BACKUP_GCS_* variables. BACKUP_GCS_CREDENTIALS
// holds either a key file path or the key JSON itself.
func (gc *GCSConfig) LoadFromEnvironment() {
	envString("BACKUP_GCS_BUCKET", &gc.Bucket)
	envString("BACKUP_GCS_PROJECT_ID", &gc.ProjectID)

	var credentials string
	if envString("BACKUP_GCS_CREDENTIALS", &credentials) {
		if strings.HasPrefix(strings.TrimSpace(credentials), "{") {
			gc.CredentialsJSON = credentials
		} else {
			gc.CredentialsPath = credentials
		}
	}
}

// Validate validates the RetentionConfig
func (rc *RetentionConfig) Validate() error {
	var problems ValidationErrors

	if rc.MaxCount < 1 {
		problems.Add("max_count", "at least one backup must be kept", rc.MaxCount)
	}

	return problems.Err()
}

// SetDefaults sets default values for retention configuration
func (rc *RetentionConfig) SetDefaults() {
	if rc.MaxCount == 0 {
		rc.MaxCount = DefaultMaxCount
	}
}

// LoadFromEnvironment reads BACKUP_RETENTION_MAX_COUNT
func (rc *RetentionConfig) LoadFromEnvironment() {
	envInt("BACKUP_RETENTION_MAX_COUNT", &rc.MaxCount)
}

// Validate validates the EncryptionConfig
func (ec *EncryptionConfig) Validate() error {
	var problems ValidationErrors

	switch {
	case ec.Passphrase == "":
		problems.Add("passphrase", "encryption passphrase is required ("+EnvPassphrase+")", nil)
	case len(ec.Passphrase) < MinPassphraseLength:
		problems.Add("passphrase", "encryption passphrase is too short", len(ec.Passphrase))
	}

	return problems.Err()
}

// LoadFromEnvironment reads the passphrase, the only place it may come from
func (ec *EncryptionConfig) LoadFromEnvironment() {
	envString(EnvPassphrase, &ec.Passphrase)
}

// Validate validates the ExtractionConfig
func (xc *ExtractionConfig) Validate() error {
	var problems ValidationErrors

	if xc.PageSize < 1 {
		problems.Add("page_size", "page size must be positive", xc.PageSize)
	}

	if xc.MaxAttempts < 1 {
		problems.Add("max_attempts", "at least one attempt is required", xc.MaxAttempts)
	}

	if xc.RetryDelay < 0 {
		problems.Add("retry_delay", "retry delay cannot be negative", xc.RetryDelay)
	}

	return problems.Err()
}

// SetDefaults sets default values for extraction configuration
func (xc *ExtractionConfig) SetDefaults() {
	if xc.PageSize == 0 {
		xc.PageSize = DefaultPageSize
	}
	if xc.OrderColumn == "" {
		xc.OrderColumn = DefaultOrderColumn
	}
	if xc.MaxAttempts == 0 {
		xc.MaxAttempts = DefaultMaxAttempts
	}
	if xc.RetryDelay == 0 {
		xc.RetryDelay = DefaultRetryDelay
	}
	if xc.ExcludedTables == nil {
		xc.ExcludedTables = DefaultExcludedTables()
	}
	if xc.FallbackTables == nil {
		xc.FallbackTables = DefaultFallbackTables()
	}
}

// LoadFromEnvironment reads BACKUP_EXTRACTION_* variables
func (xc *ExtractionConfig) LoadFromEnvironment() {
	envInt("BACKUP_EXTRACTION_PAGE_SIZE", &xc.PageSize)
	envDuration("BACKUP_EXTRACTION_RETRY_DELAY", &xc.RetryDelay)
}

// Validate validates the RestoreConfig
func (rc *RestoreConfig) Validate() error {
	var problems ValidationErrors

	if rc.TenantColumn == "" {
		problems.Add("tenant_column", "tenant column is required", rc.TenantColumn)
	}

	if rc.BatchSize < 1 {
		problems.Add("batch_size", "batch size must be positive", rc.BatchSize)
	}

	if rc.TenantTable != "" && rc.TenantKey == "" {
		problems.Add("tenant_key", "tenant key is required when a tenant table is set", rc.TenantKey)
	}

	return problems.Err()
}

// SetDefaults sets default values for restore configuration
func (rc *RestoreConfig) SetDefaults() {
	if rc.TenantColumn == "" {
		rc.TenantColumn = DefaultTenantColumn
	}
	if rc.TenantTable == "" {
		rc.TenantTable = DefaultTenantTable
	}
	if rc.TenantKey == "" {
		rc.TenantKey = DefaultTenantKey
	}
	if rc.GlobalTables == nil {
		rc.GlobalTables = DefaultGlobalTables()
	}
	if rc.PriorityTables == nil {
		rc.PriorityTables = DefaultPriorityTables()
	}
	if rc.BatchSize == 0 {
		rc.BatchSize = DefaultBatchSize
	}
}

// RetryPolicy builds the extraction retry policy from the configuration
func (xc *ExtractionConfig) RetryPolicy() apperrors.RetryPolicy {
	policy := apperrors.DefaultRetryPolicy()
	policy.MaxAttempts = xc.MaxAttempts
	policy.BaseDelay = xc.RetryDelay
	return policy
}

// envString copies a non-empty environment variable into dst
func envString(name string, dst *string) bool {
	val := os.Getenv(name)
	if val == "" {
		return false
	}
	*dst = val
	return true
}

// envInt parses an integer environment variable into dst, ignoring bad values
func envInt(name string, dst *int) {
	var raw string
	if envString(name, &raw) {
		if parsed, err := strconv.Atoi(raw); err == nil {
			*dst = parsed
		}
	}
}

// envDuration parses a duration environment variable into dst, ignoring bad values
func envDuration(name string, dst *time.Duration) {
	var raw string
	if envString(name, &raw) {
		if parsed, err := time.ParseDuration(raw); err == nil {
			*dst = parsed
		}
	}
}
