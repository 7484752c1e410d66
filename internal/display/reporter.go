package display

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tenant-backup/internal/backup"

	"github.com/goccy/go-json"
)

// Reporter writes backup and restore progress and results for operators.
// It implements backup.ProgressReporter.
type Reporter struct {
	mu       sync.Mutex
	config   *DisplayConfig
	writer   io.Writer
	colors   ColorSystem
	icons    IconSystem
	maxWidth int
}

var _ backup.ProgressReporter = (*Reporter)(nil)

// NewReporter creates a reporter from a display configuration
func NewReporter(config *DisplayConfig) (*Reporter, error) {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	maxWidth := config.MaxTableWidth
	if maxWidth == 0 {
		maxWidth = TerminalWidth(config.Writer)
	}

	return &Reporter{
		config:   config,
		writer:   config.Writer,
		colors:   NewColorSystem(ThemeFor(config.Theme), config.IsColorEnabled(), config.Writer),
		icons:    NewIconSystem(config.IsIconsEnabled()),
		maxWidth: maxWidth,
	}, nil
}

func (r *Reporter) jsonOutput() bool {
	return OutputFormat(r.config.OutputFormat) == FormatJSON
}

func (r *Reporter) progress() bool {
	return r.config.IsProgressEnabled() && !r.jsonOutput()
}

func (r *Reporter) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.writer, format, args...)
}

func (r *Reporter) status(icon string, clr Color, message string) {
	r.printf("%s %s\n", r.icons.RenderIconWithColor(icon, r.colors), r.colors.Colorize(message, clr))
}

// Success prints a success line
func (r *Reporter) Success(message string) {
	if r.config.QuietMode || r.jsonOutput() {
		return
	}
	r.status("success", r.colors.Theme().Success, message)
}

// Info prints an informational line
func (r *Reporter) Info(message string) {
	if r.config.QuietMode || r.jsonOutput() {
		return
	}
	r.status("info", r.colors.Theme().Info, message)
}

// Warning prints a warning line
func (r *Reporter) Warning(message string) {
	if r.config.QuietMode || r.jsonOutput() {
		return
	}
	r.status("warning", r.colors.Theme().Warning, message)
}

// Error prints an error line; errors are shown even in quiet mode
func (r *Reporter) Error(message string) {
	if r.jsonOutput() {
		r.writeJSON(map[string]string{"error": message})
		return
	}
	r.status("error", r.colors.Theme().Error, message)
}

// TableExtracted prints one line per extracted table
func (r *Reporter) TableExtracted(result backup.TableResult) {
	if !r.progress() {
		return
	}
	if result.Status == backup.TableStatusFailed {
		r.status("error", r.colors.Theme().Error, fmt.Sprintf("%s: %s", result.Table, result.Error))
		return
	}
	r.printf("%s %s %s\n",
		r.icons.RenderIconWithColor("success", r.colors),
		result.Table,
		r.colors.Sprintf(r.colors.Theme().Detail, "%s (%s)", pluralize(result.Rows, "row"), pluralize(result.Pages, "page")))
}

// TableRestored prints one line per restored table
func (r *Reporter) TableRestored(result backup.TableRestore) {
	if !r.progress() {
		return
	}
	switch result.State {
	case backup.RestoreStateFailed:
		r.status("error", r.colors.Theme().Error,
			fmt.Sprintf("%s: failed while %s: %s", result.Table, result.FailedIn, result.Error))
	case backup.RestoreStatePlanned:
		r.printf("%s %s %s\n",
			r.icons.RenderIconWithColor("planned", r.colors),
			result.Table,
			r.colors.Sprintf(r.colors.Theme().Detail, "would replace %d existing with %s", result.Existing, pluralize(result.Rows, "row")))
	default:
		r.printf("%s %s %s\n",
			r.icons.RenderIconWithColor("success", r.colors),
			result.Table,
			r.colors.Sprintf(r.colors.Theme().Detail, "deleted %d, inserted %d", result.Deleted, result.Inserted))
	}
}

// PrintRunReport prints the summary of a backup run
func (r *Reporter) PrintRunReport(report *backup.RunReport) {
	if report == nil {
		return
	}
	if r.jsonOutput() {
		r.writeJSON(report)
		return
	}
	if r.config.QuietMode && report.Failed() == 0 && !report.Untrustworthy {
		return
	}

	theme := r.colors.Theme()
	title := "Backup"
	if report.DryRun {
		title = "Backup (dry run)"
	}
	r.printf("\n%s %s\n", r.colors.Colorize(title, theme.Title), r.colors.Sprintf(theme.Detail, "run %s, %s discovery", report.RunID, report.DiscoveryStrategy))

	if len(report.Tables) > 0 {
		table := NewTable(r.colors, r.maxWidth, "TABLE", "STATUS", "ROWS", "PAGES", "DURATION", "NOTE")
		table.AlignRight(2, 3, 4)
		for _, t := range report.Tables {
			note := t.Error
			if t.Status == backup.TableStatusOK && !t.Ordered {
				note = "unordered"
			}
			table.AddRow(t.Table, string(t.Status), strconv.Itoa(t.Rows), strconv.Itoa(t.Pages), formatDuration(t.Duration), note)
		}
		r.printf("%s", table.Render())
	}

	summary := fmt.Sprintf("%d of %d tables backed up, %s", report.Succeeded(), len(report.Tables), pluralize(report.TotalRows(), "row"))
	if report.Failed() > 0 {
		r.status("warning", theme.Warning, summary)
	} else {
		r.status("success", theme.Success, summary)
	}

	if report.BlobName != "" {
		r.printf("  %s %s  %s\n",
			r.icons.RenderIconWithColor("lock", r.colors),
			report.BlobName,
			r.colors.Sprintf(theme.Detail, "%s (plaintext %s) sha256 %s", FormatBytes(report.CompressedSize), FormatBytes(report.PlaintextSize), report.HashPrefix()))
	}

	for _, warning := range report.Warnings {
		r.status("warning", theme.Warning, warning)
	}
	for _, table := range report.MissingCritical {
		r.status("critical", theme.Error, "critical table missing from backup: "+table)
	}

	switch {
	case report.Untrustworthy:
		r.status("error", theme.Error, "backup could not be verified; retention was skipped")
	case report.DryRun:
		r.status("info", theme.Info, "dry run: nothing was uploaded")
	case report.UploadVerified:
		r.status("success", theme.Success, "uploaded and verified")
	}

	if report.Retention != nil {
		retention := report.Retention
		r.printf("  %s %s\n",
			r.icons.RenderIconWithColor("delete", r.colors),
			fmt.Sprintf("retention: kept %d, deleted %d, legacy deleted %d", len(retention.Kept), len(retention.Deleted), len(retention.LegacyDeleted)))
		for _, name := range sortedKeys(retention.Failed) {
			r.status("warning", theme.Warning, fmt.Sprintf("could not delete %s: %s", name, retention.Failed[name]))
		}
	}

	r.printf("  %s\n", r.colors.Sprintf(theme.Detail, "finished in %s", formatDuration(report.Finished.Sub(report.Started))))
}

// PrintBlobs prints stored blobs in the order given
func (r *Reporter) PrintBlobs(blobs []backup.BlobInfo) {
	if r.jsonOutput() {
		if blobs == nil {
			blobs = []backup.BlobInfo{}
		}
		r.writeJSON(blobs)
		return
	}
	if len(blobs) == 0 {
		r.Info("no backups found")
		return
	}

	table := NewTable(r.colors, r.maxWidth, "", "NAME", "KIND", "CREATED", "SIZE")
	table.AlignRight(4)
	for _, blob := range blobs {
		icon := "blob"
		if blob.Kind == backup.BlobKindLegacy {
			icon = "legacy"
		}
		created := "-"
		if !blob.Created.IsZero() {
			created = blob.Created.UTC().Format("2006-01-02 15:04:05")
		}
		table.AddRow(r.icons.RenderIcon(icon), blob.Name, string(blob.Kind), created, FormatBytes(blob.Size))
	}
	r.printf("%s", table.Render())
}

// PrintRestoreReport prints the outcome of a restore or restore plan
func (r *Reporter) PrintRestoreReport(report *backup.RestoreReport) {
	if report == nil {
		return
	}
	if r.jsonOutput() {
		r.writeJSON(report)
		return
	}
	if r.config.QuietMode && !report.HasFailures() {
		return
	}

	theme := r.colors.Theme()
	title := "Restore"
	if report.DryRun {
		title = "Restore plan"
	}
	r.printf("\n%s %s\n", r.colors.Colorize(title, theme.Title), r.colors.Sprintf(theme.Detail, "tenant %s from %s", report.TenantID, report.Blob))

	if len(report.Tables) > 0 {
		table := NewTable(r.colors, r.maxWidth, "TABLE", "STATE", "ROWS", "EXISTING", "DELETED", "INSERTED", "NOTE")
		table.AlignRight(2, 3, 4, 5)
		for _, t := range report.Tables {
			note := t.Error
			if t.State == backup.RestoreStateFailed && t.FailedIn != "" {
				note = fmt.Sprintf("while %s: %s", t.FailedIn, t.Error)
			}
			table.AddRow(t.Table, string(t.State), strconv.Itoa(t.Rows),
				strconv.FormatInt(t.Existing, 10), strconv.FormatInt(t.Deleted, 10), strconv.FormatInt(t.Inserted, 10), note)
		}
		r.printf("%s", table.Render())
	}

	for _, name := range sortedKeys(report.Skipped) {
		r.printf("  %s %s %s\n",
			r.icons.RenderIconWithColor("skipped", r.colors),
			name,
			r.colors.Sprintf(theme.Detail, "skipped: %s", report.Skipped[name]))
	}

	switch {
	case report.HasFailures():
		names := make([]string, 0)
		for _, t := range report.FailedTables() {
			names = append(names, t.Table)
		}
		r.status("error", theme.Error, fmt.Sprintf("%d of %d tables failed: %s", len(names), len(report.Tables), strings.Join(names, ", ")))
	case report.DryRun:
		r.status("info", theme.Info, fmt.Sprintf("dry run: %d tables would be restored; rerun with --confirm to apply", len(report.Tables)))
	default:
		r.status("success", theme.Success, fmt.Sprintf("restored %s into %d tables", pluralize(int(report.TotalInserted()), "row"), len(report.Tables)))
	}
}

func (r *Reporter) writeJSON(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(r.writer, "{\"error\": %q}\n", err.Error())
	}
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
