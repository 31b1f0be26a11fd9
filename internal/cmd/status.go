package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/internal/observability"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id> <new-status>",
	Short: "Record a job status change",
	Long: `Record a status transition reported by the job monitor. The previous
status is read from the job store. Reaching Done sends the completion email
when the job asked for one and mail is enabled.

Example:
  vgljobs status 1235 Done`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	newStatus := args[1]

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	job, err := store.GetJobByID(ctx, jobID)
	if err != nil {
		if jobstore.IsNotFound(err) {
			return exitError(foundry.ExitInvalidArgument, "Job not found", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to load job", err)
	}

	reactor, err := newStatusHandler(store, cfg, observability.CLILogger)
	if err != nil {
		return err
	}
	oldStatus := job.Status
	if err := reactor.HandleStatusChange(ctx, job, newStatus, oldStatus); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to record status change", err)
	}

	observability.CLILogger.Info("Status updated",
		zap.Int64("job_id", jobID),
		zap.String("from", oldStatus),
		zap.String("to", job.Status))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d: %s -> %s\n", jobID, oldStatus, job.Status)
	return err
}
