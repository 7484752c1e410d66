package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/database"
	"tenant-backup/internal/display"
	"tenant-backup/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	runDryRun bool
	runList   bool
)

// runCmd performs one backup run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up every table to an encrypted blob",
	Long: `Discover the tables of the scheduling database, extract every row page by
page, sanitize configured fields, then compress, encrypt and verify the
backup before uploading it. Older backups are pruned according to the
retention policy once the new blob has been verified in storage.

A table that cannot be read is recorded in the backup instead of failing
the run. The command exits non-zero when no verified backup was produced.

Examples:
  # Full backup
  tenant-backup run

  # Build and verify the backup without uploading it
  tenant-backup run --dry-run

  # List stored backups
  tenant-backup run --list --format json`,
	RunE: runBackup,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "build and verify the backup without uploading or pruning")
	runCmd.Flags().BoolVar(&runList, "list", false, "list stored backups instead of running one")
	rootCmd.AddCommand(runCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx, cmd.OutOrStdout(), !runList)
	if err != nil {
		return err
	}
	defer p.Close()

	if runList {
		blobs, err := p.runner.ListBlobs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		p.reporter.PrintBlobs(blobs)
		return nil
	}

	report, err := p.runner.Backup(ctx, backup.BackupOptions{DryRun: runDryRun})
	p.reporter.PrintRunReport(report)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	return nil
}

// pipeline holds everything one command invocation wires together
type pipeline struct {
	config    *backup.Config
	logger    *logging.Logger
	audit     *backup.BackupLogger
	metrics   *backup.MetricsCollector
	reporter  *display.Reporter
	store     *backup.RetryingStore
	dbService *database.Service
	db        *sql.DB
	runner    *backup.Runner
}

// openPipeline loads configuration and connects the object store and, when
// withDatabase is set, the scheduling database
func openPipeline(ctx context.Context, out io.Writer, withDatabase bool) (*pipeline, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	reporter, err := newReporter(out)
	if err != nil {
		return nil, fmt.Errorf("invalid display options: %w", err)
	}

	p := &pipeline{config: config, logger: logger, reporter: reporter}

	p.audit, err = backup.NewBackupLogger(backup.BackupLoggerConfig{
		Logger:       logger,
		AuditLogFile: viper.GetString("logging.audit_file"),
	})
	if err != nil {
		return nil, err
	}

	p.metrics, err = backup.NewMetricsCollector(viper.GetString("metrics.file"), logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	inner, err := backup.NewObjectStore(ctx, config.Storage)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.store = backup.NewRetryingStore(inner, config.Extraction.RetryPolicy(), logger)

	deps := backup.RunnerDependencies{Store: p.store}
	if withDatabase {
		p.dbService = database.NewServiceWithLogger(logger)
		p.db, err = p.dbService.Connect(ctx, config.Database)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := database.NewStore(p.db, logger)
		deps.Catalog = store
		deps.Reader = store
		deps.Writer = store
	}

	p.runner, err = backup.NewRunner(config, deps, p.audit)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.runner.SetReporter(reporter)
	p.runner.SetMetrics(p.metrics)

	return p, nil
}

// Close releases connections and persists metrics
func (p *pipeline) Close() {
	if p.metrics != nil {
		if err := p.metrics.Save(); err != nil {
			p.logger.WithField("error", err.Error()).Warn("Failed to save metrics")
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.logger.WithField("error", err.Error()).Warn("Failed to close object store")
		}
	}
	if p.db != nil {
		p.dbService.Close(p.db)
	}
	if p.audit != nil {
		p.audit.Close()
	}
}
