package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/internal/observability"
	"github.com/auscope/vgljobs/pkg/registration"
)

var (
	registerDryRun bool
	registerFormat string
)

var registerCmd = &cobra.Command{
	Use:   "register <job-id>",
	Short: "Publish a job's catalog record",
	Long: `Build the ISO 19139 record for a job's outputs, insert it into the
catalog, and store the registered URL on the job.

With --dry-run the record is built and printed but not inserted.

Examples:
  vgljobs register 1235
  vgljobs register 1235 --dry-run
  vgljobs register 1235 --dry-run --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().BoolVar(&registerDryRun, "dry-run", false, "Print the record without registering it")
	registerCmd.Flags().StringVarP(&registerFormat, "format", "f", formatYAML, "Dry-run output format (yaml|json)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	if registerDryRun {
		if err := validateFormat(registerFormat); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger := observability.CLILogger

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	storage, err := newStorageService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if registerDryRun {
		rec, err := newPipeline(store, storage, nil, logger).Preview(ctx, jobID)
		if err != nil {
			return registrationExit(err)
		}
		return writeStructured(cmd.OutOrStdout(), registerFormat, rec)
	}

	client, err := newCatalogClient(cfg, logger)
	if err != nil {
		return err
	}
	url, err := newPipeline(store, storage, client, logger).RegisterJob(ctx, jobID)
	if err != nil {
		return registrationExit(err)
	}

	observability.CLILogger.Info("Job registered", zap.Int64("job_id", jobID), zap.String("url", url))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
	return err
}

// registrationExit maps a registration failure to an exit code.
func registrationExit(err error) error {
	kind := registration.KindOf(err)
	switch kind.Category() {
	case registration.CategoryNotFound, registration.CategoryConflict:
		return exitError(foundry.ExitInvalidArgument, "Registration rejected", err)
	case registration.CategoryUpstreamUnavailable:
		return exitError(foundry.ExitExternalServiceUnavailable, "Registration failed", err)
	default:
		return exitError(foundry.ExitFileWriteError, "Registration not saved", err)
	}
}
