package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/display"
	"tenant-backup/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tenant-backup",
	Short: "Encrypted backups of the scheduling database with per-tenant restore",
	Long: `tenant-backup snapshots every table of the scheduling database into one
compressed, encrypted blob in object storage, keeps the newest backups
according to the retention policy, and restores a single tenant's rows
from any stored backup.

Secrets are read from the environment only:
  BACKUP_DATABASE_DSN            database connection (or BACKUP_DATABASE_HOST/USER/PASSWORD/NAME)
  BACKUP_ENCRYPTION_PASSPHRASE   passphrase the encryption key is derived from (min 16 characters)
  BACKUP_S3_ACCESS_KEY, BACKUP_S3_SECRET_KEY, BACKUP_AZURE_ACCOUNT_KEY, BACKUP_GCS_CREDENTIALS

Examples:
  # Back up every table and apply retention
  tenant-backup run --config backup.yaml

  # List stored backups, newest first
  tenant-backup run --list

  # Show what restoring tenant 42 would change
  tenant-backup restore --org 42

  # Restore two tables of tenant 42 from a specific backup
  tenant-backup restore --org 42 --file backup-2024-01-02T03-04-05-678Z.enc --tables kunder,avtaler --confirm`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./tenant-backup.yaml when present)")
	flags.String("storage", "", "override the storage provider (local, s3, azure, gcs)")
	flags.String("log-level", string(logging.LogLevelNormal), "log level (quiet, normal, verbose, debug)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("audit-log", "", "append JSON audit entries to this file")
	flags.String("metrics-file", "", "persist pipeline metrics to this JSON file")

	flags.String("format", string(display.FormatText), "output format (text, json)")
	flags.String("theme", string(display.ThemeDark), "color theme (dark, light, high-contrast, plain)")
	flags.Bool("no-color", false, "disable color output")
	flags.Bool("no-icons", false, "disable Unicode icons")
	flags.Bool("no-progress", false, "disable per-table progress lines")
	flags.BoolP("quiet", "q", false, "only print failures")
	flags.BoolP("verbose", "v", false, "enable verbose logging")

	bindings := map[string]string{
		"config":                "config",
		"storage.provider":      "storage",
		"logging.level":         "log-level",
		"logging.format":        "log-format",
		"logging.file":          "log-file",
		"logging.audit_file":    "audit-log",
		"metrics.file":          "metrics-file",
		"display.output_format": "format",
		"display.theme":         "theme",
		"display.no_color":      "no-color",
		"display.no_icons":      "no-icons",
		"display.no_progress":   "no-progress",
		"display.quiet":         "quiet",
		"display.verbose":       "verbose",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// initConfig sets up environment binding. BACKUP_LOG_LEVEL, BACKUP_STORAGE_PROVIDER
// and friends override the flag defaults.
func initConfig() {
	viper.SetEnvPrefix("BACKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// configPath returns the config file to load, or empty for defaults only
func configPath() string {
	if path := viper.GetString("config"); path != "" {
		return path
	}
	if _, err := os.Stat("tenant-backup.yaml"); err == nil {
		return "tenant-backup.yaml"
	}
	return ""
}

// loadConfig reads the pipeline configuration. The file is parsed by the
// backup loader rather than viper so secrets can never come from it.
func loadConfig() (*backup.Config, error) {
	loader := backup.NewConfigLoader(configPath())
	if provider := viper.GetString("storage.provider"); provider != "" {
		loader.WithOverride(func(c *backup.Config) {
			c.Storage.UseProvider(backup.StorageProviderType(provider))
		})
	}
	return loader.LoadConfig()
}

// newLogger builds the operational logger from flags and environment
func newLogger() (*logging.Logger, error) {
	level := logging.LogLevel(viper.GetString("logging.level"))
	switch {
	case viper.GetBool("display.verbose"):
		level = logging.LogLevelVerbose
	case viper.GetBool("display.quiet"):
		level = logging.LogLevelQuiet
	}

	return logging.NewLogger(logging.Config{
		Level:   level,
		Output:  os.Stderr,
		Format:  viper.GetString("logging.format"),
		LogFile: viper.GetString("logging.file"),
	})
}

// newReporter builds the terminal reporter from flags and environment
func newReporter(out io.Writer) (*display.Reporter, error) {
	config := display.DefaultDisplayConfig()
	config.Writer = out
	config.OutputFormat = viper.GetString("display.output_format")
	config.Theme = viper.GetString("display.theme")
	config.ColorEnabled = !viper.GetBool("display.no_color")
	config.UseIcons = !viper.GetBool("display.no_icons")
	config.ShowProgress = !viper.GetBool("display.no_progress")
	config.QuietMode = viper.GetBool("display.quiet")
	config.VerboseMode = viper.GetBool("display.verbose")
	return display.NewReporter(config)
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tenant-backup version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

// createConfigCommand creates the config subcommand group
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented default configuration file",
		Long: `Write a default configuration file with every option and its default.

Secrets are never written; provide them through the environment.

Examples:
  tenant-backup config init
  tenant-backup config init /etc/tenant-backup/backup.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "tenant-backup.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := backup.WriteDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
