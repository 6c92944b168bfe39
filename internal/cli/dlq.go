package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/dlq"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/workitem"
)

// dlqCmd is the parent "dlq" namespace command.
var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and reprocess dead-lettered items",
	Long:  "List items that were dead-lettered (a permanent failure or an exhausted retry budget), or re-admit a cluster of them back into the job.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every dead-lettered item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDLQList(cmd)
	},
}

var dlqReprocessFlags struct {
	ErrorSignature string
}

// dlqReprocessCmd implements "mrctl dlq reprocess". The --error-signature
// filter is the same error-clustering idea the retry policy itself uses to
// decide whether a failure is worth retrying (see internal/dlq.Policy) --
// here applied after the fact, letting an operator re-admit every item that
// failed for the same reason in one shot instead of one item at a time.
var dlqReprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-admit dead-lettered items matching an error signature",
	Long: `Remove every DLQ record whose last error matches --error-signature
(a regular expression) and re-admit those items into the latest checkpoint's
pending partition, writing a new checkpoint so the next "mrctl resume"
retries them.`,
	Example: `  # Re-admit every item that failed on a timeout
  mrctl dlq reprocess --error-signature 'context deadline exceeded'

  # Re-admit everything
  mrctl dlq reprocess --error-signature '.*'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dlqReprocessFlags.ErrorSignature == "" {
			return fmt.Errorf("dlq reprocess: --error-signature is required")
		}
		return runDLQReprocess(cmd, dlqReprocessFlags.ErrorSignature)
	},
}

func init() {
	dlqReprocessCmd.Flags().StringVar(&dlqReprocessFlags.ErrorSignature, "error-signature", "", "Regular expression matched against each record's last error")
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqReprocessCmd)
	rootCmd.AddCommand(dlqCmd)
}

func runDLQList(cmd *cobra.Command) error {
	repoDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("dlq: resolving working directory: %w", err)
	}

	store := dlq.NewStore(dlqPath(repoDir))
	records, err := store.List()
	if err != nil {
		return fmt.Errorf("dlq: listing records: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No dead-lettered items.")
		return nil
	}

	formatDLQTable(records, cmd.OutOrStdout())
	return nil
}

func runDLQReprocess(cmd *cobra.Command, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("dlq reprocess: invalid --error-signature: %w", err)
	}

	repoDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("dlq: resolving working directory: %w", err)
	}

	dlqStore := dlq.NewStore(dlqPath(repoDir))
	records, err := dlqStore.List()
	if err != nil {
		return fmt.Errorf("dlq reprocess: listing records: %w", err)
	}

	var matched []dlq.Record
	for _, rec := range records {
		if re.MatchString(rec.Failure.LastError) {
			matched = append(matched, rec)
		}
	}
	if len(matched) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No DLQ records matched the given error signature.")
		return nil
	}

	cpStore := checkpoint.NewStore(checkpointDir(repoDir))
	cp, err := cpStore.Latest()
	if err != nil {
		return fmt.Errorf("dlq reprocess: loading latest checkpoint: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("dlq reprocess: no checkpoint to reprocess items into")
	}

	items := workitem.FromSnapshot(cp.Items)
	for _, rec := range matched {
		if _, err := dlqStore.Reprocess(rec.Item.ID); err != nil {
			return fmt.Errorf("dlq reprocess: %w", err)
		}
		items.ReprocessFromDLQ(rec.Item.ID, rec.Item.Data, rec.Failure.Attempts)
	}

	j := &job.Job{
		ID:           cp.JobID,
		WorkflowHash: cp.WorkflowHash,
		CreatedAt:    cp.CreatedAt,
		State: &job.ExecutionState{
			CurrentPhase: cp.Phase,
			Status:       cp.Status,
		},
		Items:     items,
		Roster:    job.NewAgentRoster(),
		Variables: variables.NewStore(),
	}
	j.Variables.Restore(cp.Variables)

	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}

	newCp, err := checkpoint.Prepare(j, fmt.Sprintf("%s-%d", j.ID, cp.Version+1), cp.Version, checkpoint.ReasonManual)
	if err != nil {
		return fmt.Errorf("dlq reprocess: preparing checkpoint: %w", err)
	}
	if err := cpStore.Write(newCp, resolved.Config.Retention.MaxCheckpoints, resolved.Config.Retention.MaxAge.Duration); err != nil {
		return fmt.Errorf("dlq reprocess: writing checkpoint: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Reprocessed %d item(s); resume to retry them.\n", len(matched))
	return nil
}

// formatDLQTable writes a tabwriter-aligned table of DLQ records to w.
func formatDLQTable(records []dlq.Record, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ITEM ID\tATTEMPTS\tLAST ERROR\tDEAD-LETTERED AT\tMANUAL REVIEW")
	fmt.Fprintln(tw, "-------\t--------\t----------\t----------------\t-------------")

	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\n",
			rec.Item.ID,
			rec.Failure.Attempts,
			truncate(rec.Failure.LastError, 60),
			rec.DeadLetteredAt.Format("2006-01-02 15:04:05"),
			rec.ManualReviewRequired,
		)
	}
}

// truncate shortens s to at most n runes, appending an ellipsis if cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
