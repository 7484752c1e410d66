package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/confirmation"

	"github.com/spf13/cobra"
)

var (
	restoreOrg     string
	restoreFile    string
	restoreTables  []string
	restoreConfirm bool
	restorePrompt  bool
)

// restoreCmd restores one tenant from a stored backup
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore one tenant's rows from a backup",
	Long: `Replace one tenant's rows with the rows stored in a backup.

For every tenant-scoped table the tenant's current rows are deleted and the
backed-up rows inserted. Global tables and tables that failed during the
backup are skipped. Without --confirm nothing is written; the command only
reports how many rows each table holds now and in the backup. With
--interactive the plan is followed by a prompt to apply it.

Restore is not atomic across tables. The command exits non-zero when the
tenant is unknown to the backup or any table fails; the report lists exactly
which tables were restored.

Examples:
  # Preview restoring tenant 42 from the newest backup
  tenant-backup restore --org 42

  # Restore two tables from a specific backup
  tenant-backup restore --org 42 --file backup-2024-01-02T03-04-05-678Z.enc --tables kunder,avtaler --confirm`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreOrg, "org", "", "tenant (organization) id to restore")
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "backup blob to restore from (default newest)")
	restoreCmd.Flags().StringSliceVar(&restoreTables, "tables", nil, "only restore these tables")
	restoreCmd.Flags().BoolVar(&restoreConfirm, "confirm", false, "apply the restore instead of printing the plan")
	restoreCmd.Flags().BoolVarP(&restorePrompt, "interactive", "i", false, "after showing the plan, ask whether to apply it")
	restoreCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx, cmd.OutOrStdout(), true)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.runner.Restore(ctx, backup.RestoreOptions{
		TenantID: restoreOrg,
		Blob:     restoreFile,
		Tables:   restoreTables,
		Confirm:  restoreConfirm,
	})
	p.reporter.PrintRestoreReport(report)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	if restoreConfirm || !restorePrompt || !confirmation.IsInteractive(os.Stdin) {
		return nil
	}

	prompter := confirmation.NewPrompter(os.Stdin, cmd.OutOrStdout())
	question := fmt.Sprintf("Replace tenant %s's rows in %d tables with %s?", report.TenantID, len(report.Tables), report.Blob)
	approved, err := prompter.Confirm(ctx, question)
	if err != nil || !approved {
		return err
	}

	// Pin the blob the plan was made from.
	report, err = p.runner.Restore(ctx, backup.RestoreOptions{
		TenantID: restoreOrg,
		Blob:     report.Blob,
		Tables:   restoreTables,
		Confirm:  true,
	})
	p.reporter.PrintRestoreReport(report)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return nil
}
