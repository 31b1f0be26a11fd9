package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/auscope/vgljobs/internal/observability"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

var jobsFormat string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and seed the job store",
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Print a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsAuditCmd = &cobra.Command{
	Use:   "audit <job-id>",
	Short: "Print a job's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAudit,
}

var jobsSeriesCmd = &cobra.Command{
	Use:   "series <series-id>",
	Short: "Print a series and its jobs",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSeries,
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Load series and jobs from a YAML seed file",
	Long: `Load series and jobs from a YAML seed file, for local use and testing.

Seed file:
  series:
    - id: 5432
      user: user@example.org
      name: Survey
  jobs:
    - id: 1235
      series_id: 5432
      name: Gravity inversion
      submit_date: "20130101_120000"
      output_bucket: vgl-outputs
      output_base_key: jobs/1235`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsImport,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsShowCmd, jobsAuditCmd, jobsSeriesCmd, jobsImportCmd)
	jobsCmd.PersistentFlags().StringVarP(&jobsFormat, "format", "f", formatYAML, "Output format (yaml|json)")
}

// jobView is the printed form of a job.
type jobView struct {
	ID                   int64      `json:"id" yaml:"id"`
	SeriesID             int64      `json:"series_id" yaml:"series_id"`
	Name                 string     `json:"name" yaml:"name"`
	Description          string     `json:"description,omitempty" yaml:"description,omitempty"`
	User                 string     `json:"user,omitempty" yaml:"user,omitempty"`
	EmailAddress         string     `json:"email_address,omitempty" yaml:"email_address,omitempty"`
	EmailNotification    bool       `json:"email_notification" yaml:"email_notification"`
	Status               string     `json:"status" yaml:"status"`
	ProcessDate          *time.Time `json:"process_date,omitempty" yaml:"process_date,omitempty"`
	SubmitDate           string     `json:"submit_date,omitempty" yaml:"submit_date,omitempty"`
	SelectionMaxEasting  float64    `json:"selection_max_easting" yaml:"selection_max_easting"`
	SelectionMinEasting  float64    `json:"selection_min_easting" yaml:"selection_min_easting"`
	SelectionMaxNorthing float64    `json:"selection_max_northing" yaml:"selection_max_northing"`
	SelectionMinNorthing float64    `json:"selection_min_northing" yaml:"selection_min_northing"`
	OutputBucket         string     `json:"output_bucket,omitempty" yaml:"output_bucket,omitempty"`
	OutputBaseKey        string     `json:"output_base_key,omitempty" yaml:"output_base_key,omitempty"`
	RegisteredURL        string     `json:"registered_url,omitempty" yaml:"registered_url,omitempty"`
}

func newJobView(j *jobstore.Job) jobView {
	v := jobView{
		ID:                   j.ID,
		SeriesID:             j.SeriesID,
		Name:                 j.Name,
		Description:          j.Description,
		User:                 j.User,
		EmailAddress:         j.EmailAddress,
		EmailNotification:    j.EmailNotification,
		Status:               j.Status,
		ProcessDate:          j.ProcessDate,
		SubmitDate:           j.SubmitDate,
		SelectionMaxEasting:  j.SelectionMaxEasting,
		SelectionMinEasting:  j.SelectionMinEasting,
		SelectionMaxNorthing: j.SelectionMaxNorthing,
		SelectionMinNorthing: j.SelectionMinNorthing,
		OutputBucket:         j.OutputBucket,
		OutputBaseKey:        j.OutputBaseKey,
	}
	if j.RegisteredURL != nil {
		v.RegisteredURL = *j.RegisteredURL
	}
	return v
}

func (v jobView) job() *jobstore.Job {
	j := &jobstore.Job{
		ID:                   v.ID,
		SeriesID:             v.SeriesID,
		Name:                 v.Name,
		Description:          v.Description,
		User:                 v.User,
		EmailAddress:         v.EmailAddress,
		EmailNotification:    v.EmailNotification,
		Status:               v.Status,
		ProcessDate:          v.ProcessDate,
		SubmitDate:           v.SubmitDate,
		SelectionMaxEasting:  v.SelectionMaxEasting,
		SelectionMinEasting:  v.SelectionMinEasting,
		SelectionMaxNorthing: v.SelectionMaxNorthing,
		SelectionMinNorthing: v.SelectionMinNorthing,
		OutputBucket:         v.OutputBucket,
		OutputBaseKey:        v.OutputBaseKey,
	}
	if v.RegisteredURL != "" {
		url := v.RegisteredURL
		j.RegisteredURL = &url
	}
	return j
}

type seriesView struct {
	ID          int64  `json:"id" yaml:"id"`
	User        string `json:"user" yaml:"user"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type seriesJobsView struct {
	seriesView `yaml:",inline"`
	Jobs       []jobView `json:"jobs" yaml:"jobs"`
}

type auditView struct {
	From      string    `json:"from" yaml:"from"`
	To        string    `json:"to" yaml:"to"`
	Message   string    `json:"message" yaml:"message"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// seedFile is the jobs import document.
type seedFile struct {
	Series []seriesView `yaml:"series"`
	Jobs   []jobView    `yaml:"jobs"`
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *jobstore.Store) error) error {
	if err := validateFormat(jobsFormat); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cmd.Context(), store)
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, store *jobstore.Store) error {
		job, err := store.GetJobByID(ctx, jobID)
		if err != nil {
			return lookupExit(err)
		}
		return writeStructured(cmd.OutOrStdout(), jobsFormat, newJobView(job))
	})
}

func runJobsAudit(cmd *cobra.Command, args []string) error {
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, store *jobstore.Store) error {
		if _, err := store.GetJobByID(ctx, jobID); err != nil {
			return lookupExit(err)
		}
		entries, err := store.ListAuditTrail(ctx, jobID)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read audit trail", err)
		}
		views := make([]auditView, 0, len(entries))
		for _, e := range entries {
			views = append(views, auditView{From: e.FromStatus, To: e.ToStatus, Message: e.Message, CreatedAt: e.CreatedAt})
		}
		return writeStructured(cmd.OutOrStdout(), jobsFormat, views)
	})
}

func runJobsSeries(cmd *cobra.Command, args []string) error {
	seriesID, err := parseID("series", args[0])
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, store *jobstore.Store) error {
		series, err := store.GetSeriesByID(ctx, seriesID)
		if err != nil {
			if jobstore.IsNotFound(err) {
				return exitError(foundry.ExitInvalidArgument, "Series not found", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to load series", err)
		}
		jobs, err := store.ListJobsBySeries(ctx, seriesID)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list series jobs", err)
		}
		view := seriesJobsView{
			seriesView: seriesView{ID: series.ID, User: series.User, Name: series.Name, Description: series.Description},
			Jobs:       make([]jobView, 0, len(jobs)),
		}
		for i := range jobs {
			view.Jobs = append(view.Jobs, newJobView(&jobs[i]))
		}
		return writeStructured(cmd.OutOrStdout(), jobsFormat, view)
	})
}

func runJobsImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return exitError(foundry.ExitFileNotFound, "Seed file not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read seed file", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid seed file", err)
	}

	return withStore(cmd, func(ctx context.Context, store *jobstore.Store) error {
		for _, sv := range seed.Series {
			s := &jobstore.Series{ID: sv.ID, User: sv.User, Name: sv.Name, Description: sv.Description}
			if err := store.CreateSeries(ctx, s); err != nil {
				return exitError(foundry.ExitFileWriteError, fmt.Sprintf("Failed to import series %d", sv.ID), err)
			}
		}
		for _, jv := range seed.Jobs {
			if err := store.CreateJob(ctx, jv.job()); err != nil {
				return exitError(foundry.ExitFileWriteError, fmt.Sprintf("Failed to import job %d", jv.ID), err)
			}
		}
		observability.CLILogger.Info("Seed imported",
			zap.String("path", path),
			zap.Int("series", len(seed.Series)),
			zap.Int("jobs", len(seed.Jobs)))
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d series, %d jobs\n", len(seed.Series), len(seed.Jobs))
		return err
	})
}

func lookupExit(err error) error {
	if jobstore.IsNotFound(err) {
		return exitError(foundry.ExitInvalidArgument, "Job not found", err)
	}
	return exitError(foundry.ExitExternalServiceUnavailable, "Failed to load job", err)
}
