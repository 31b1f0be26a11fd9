package cmd

import (
	"context"
	"fmt"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/internal/config"
	"github.com/auscope/vgljobs/internal/observability"
	"github.com/auscope/vgljobs/pkg/provider"
	s3provider "github.com/auscope/vgljobs/pkg/provider/s3"
)

// imdsTimeout keeps doctor fast off EC2, where the metadata endpoint never
// answers.
const imdsTimeout = 2 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on configuration, the job store, and storage
credentials, and suggest fixes for common issues.

Examples:
  vgljobs doctor`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorRun struct {
	log   *zap.Logger
	num   int
	total int
	ok    bool
}

func (d *doctorRun) pass(what, detail string, fields ...zap.Field) {
	d.num++
	d.log.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", d.num, d.total, what, detail), fields...)
}

func (d *doctorRun) fail(what, detail string, fields ...zap.Field) {
	d.num++
	d.ok = false
	d.log.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", d.num, d.total, what, detail), fields...)
}

func (d *doctorRun) warn(what, detail string, fields ...zap.Field) {
	d.num++
	d.log.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", d.num, d.total, what, detail), fields...)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := &doctorRun{log: observability.CLILogger, total: 6, ok: true}

	d.log.Info("=== " + binaryName + " doctor ===")
	d.log.Info("")

	d.pass("environment", fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", runtime.Version()))

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		d.fail("configuration", "cannot load configuration", zap.Error(err))
		return err
	}
	d.pass("configuration", "loaded", zap.String("driver", cfg.Database.Driver), zap.String("storage", cfg.Storage.Provider))

	checkStore(ctx, d, cfg)
	checkStorage(ctx, d, cfg)

	if cfg.Catalog.URL == "" {
		d.fail("catalog", "catalog.url is not set (VGLJOBS_CATALOG_URL)")
	} else {
		d.pass("catalog", cfg.Catalog.URL)
	}

	switch {
	case !cfg.Mail.Enabled:
		d.warn("mail", "disabled; completion emails will not be sent")
	default:
		d.pass("mail", fmt.Sprintf("%s:%d from %s", cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.From))
	}

	d.log.Info("")
	if !d.ok {
		d.log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed", fmt.Errorf("one or more checks failed"))
	}
	d.log.Info("✅ All checks passed!")
	return nil
}

func checkStore(ctx context.Context, d *doctorRun, cfg *config.Config) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		d.fail("job store", "cannot open", zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()
	if err := store.DB().PingContext(ctx); err != nil {
		d.fail("job store", "ping failed", zap.Error(err))
		return
	}
	d.pass("job store", cfg.Database.Driver)
}

func checkStorage(ctx context.Context, d *doctorRun, cfg *config.Config) {
	if cfg.Storage.Provider == string(provider.ProviderFile) {
		if _, err := newOpener(ctx, cfg); err != nil {
			d.fail("storage", "file root unusable", zap.Error(err))
			return
		}
		d.pass("storage", "file root "+cfg.Storage.BaseDir)
		return
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Storage.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Storage.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		d.fail("AWS credentials", "cannot load AWS config", zap.Error(err))
		printAWSCredentialsHelp(d.log)
		return
	}

	if cfg.Storage.AccessKeyID != "" {
		d.pass("AWS credentials", "static keys from storage config",
			zap.String("access_key", maskAccessKey(cfg.Storage.AccessKeyID)))
	} else {
		creds, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil {
			d.fail("AWS credentials", "cannot retrieve credentials", zap.Error(err))
			printAWSCredentialsHelp(d.log)
			return
		}
		d.pass("AWS credentials", "found credentials",
			zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
			zap.String("source", creds.Source))
	}

	if cfg.Storage.Region != "" || awsCfg.Region != "" {
		return
	}
	// No region configured: try the instance metadata service.
	ictx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	out, err := imds.NewFromConfig(awsCfg).GetRegion(ictx, &imds.GetRegionInput{})
	if err != nil {
		d.log.Info("    No region configured and instance metadata unavailable; defaulting to " + s3provider.DefaultAWSRegion)
		return
	}
	d.log.Info("    Region from instance metadata: " + out.Region)
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp(log *zap.Logger) {
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or")
	log.Info("  2. Set storage.profile to a shared config profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
	log.Info("")
	log.Info("For S3-compatible storage also set storage.endpoint and storage.force_path_style.")
	log.Info("")
}
