package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/dlq"
)

// statusFlags holds the flag values for the status command.
type statusFlags struct {
	JSON bool // --json for structured output
}

// statusOutput is the top-level JSON output type for the status command.
type statusOutput struct {
	JobID        string  `json:"job_id"`
	Phase        string  `json:"phase"`
	Status       string  `json:"status"`
	CheckpointID string  `json:"checkpoint_id"`
	Version      int     `json:"version"`
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	InProgress   int     `json:"in_progress"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	DeadLettered int     `json:"dead_lettered"`
	DLQSize      int     `json:"dlq_size"`
	Percent      float64 `json:"percent"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show map-phase progress from the latest checkpoint",
	Long: `Display item counts across the pending, in-progress, completed,
failed and dead-lettered partitions from the most recently written
checkpoint, along with a progress bar and the current DLQ size.

Use --json for structured output suitable for scripting.`,
	Example: `  # Show current progress
  mrctl status

  # Structured JSON output
  mrctl status --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var flags statusFlags
		flags.JSON, _ = cmd.Flags().GetBool("json")
		return runStatus(cmd, flags)
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output structured JSON to stdout")
	rootCmd.AddCommand(statusCmd)
}

// runStatus loads the latest checkpoint and DLQ store for the current
// working directory's repo and renders a progress report.
func runStatus(cmd *cobra.Command, flags statusFlags) error {
	repoDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("status: resolving working directory: %w", err)
	}

	store := checkpoint.NewStore(checkpointDir(repoDir))
	cp, err := store.Latest()
	if err != nil {
		return fmt.Errorf("status: loading latest checkpoint: %w", err)
	}
	if cp == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "No checkpoints found; no job has run in this repo yet.")
		return nil
	}

	dlqStore := dlq.NewStore(dlqPath(repoDir))
	records, err := dlqStore.List()
	if err != nil {
		return fmt.Errorf("status: listing DLQ: %w", err)
	}

	if flags.JSON {
		return renderStatusJSON(cmd.OutOrStdout(), cp, len(records))
	}

	fmt.Fprintln(cmd.ErrOrStderr(), renderStatusReport(cp, len(records)))
	return nil
}

// renderStatusJSON serializes the checkpoint's partition counts to JSON.
func renderStatusJSON(w io.Writer, cp *checkpoint.Checkpoint, dlqSize int) error {
	total := cp.Items.Total
	completed := len(cp.Items.Completed)
	failed := len(cp.Items.Failed)
	deadLettered := len(cp.Items.DeadLettered)

	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}

	out := statusOutput{
		JobID:        cp.JobID,
		Phase:        string(cp.Phase),
		Status:       string(cp.Status),
		CheckpointID: cp.ID,
		Version:      cp.Version,
		Total:        total,
		Pending:      len(cp.Items.Pending),
		InProgress:   len(cp.Items.InProgress),
		Completed:    completed,
		Failed:       failed,
		DeadLettered: deadLettered,
		DLQSize:      dlqSize,
		Percent:      pct,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// renderStatusReport returns a styled human-readable progress report.
//
//	Job wf-1234 - Phase: map
//	========================
//	████████████░░░░░░░░ 60% (12/20 completed)
//	8 pending, 2 in-progress, 12 completed, 1 failed, 1 dead-lettered
//	DLQ: 1 item(s) retained
func renderStatusReport(cp *checkpoint.Checkpoint, dlqSize int) string {
	const barWidth = 40

	headerStyle := lipgloss.NewStyle().Bold(true)
	sepStyle := lipgloss.NewStyle()
	completedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	pendingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))   // yellow
	failedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))     // red
	dlqStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))        // dark gray

	total := cp.Items.Total
	completed := len(cp.Items.Completed)
	failed := len(cp.Items.Failed)
	deadLettered := len(cp.Items.DeadLettered)
	pending := len(cp.Items.Pending)
	inProgress := len(cp.Items.InProgress)

	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total)
	}

	title := fmt.Sprintf("Job %s - Phase: %s", cp.JobID, cp.Phase)
	sep := strings.Repeat("=", len(title))

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sepStyle.Render(sep))
	sb.WriteString("\n")
	sb.WriteString(bar.ViewAs(pct))
	sb.WriteString(fmt.Sprintf(" %.0f%% (%d/%d completed)\n", pct*100, completed, total))

	var parts []string
	if pending > 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d pending", pending)))
	}
	if inProgress > 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d in-progress", inProgress)))
	}
	if completed > 0 {
		parts = append(parts, completedStyle.Render(fmt.Sprintf("%d completed", completed)))
	}
	if failed > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	if deadLettered > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d dead-lettered", deadLettered)))
	}
	if len(parts) > 0 {
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString(dlqStyle.Render(fmt.Sprintf("DLQ: %d item(s) retained", dlqSize)))

	return sb.String()
}

// dlqPath is the JSONL file a repo's dead-lettered items are logged to.
func dlqPath(repoDir string) string {
	return filepath.Join(stateDir(repoDir), "dlq.jsonl")
}
