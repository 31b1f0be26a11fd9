// Package cmd implements the vgljobs command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/internal/config"
	"github.com/auscope/vgljobs/internal/observability"
)

const binaryName = "vgljobs"

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata, normally from ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	configFile string
	verbose    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "VGL job status tracking and catalog registration",
	Long: `vgljobs tracks VGL compute jobs and publishes ISO 19139 metadata records
describing their outputs to a GeoNetwork catalog.

Configuration is read from vgljobs.yaml (current directory or the user
config directory), VGLJOBS_* environment variables, and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(binaryName, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./vgljobs.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose CLI output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Service log level (debug|info|warn|error)")
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitCode(err)
}

// loadConfig resolves configuration with CLI flags as runtime overrides.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, configFile); err != nil {
			return nil, err
		}
	}
	if overrides == nil {
		overrides = map[string]any{}
	}
	if logLevel != "" {
		overrides["logging"] = map[string]any{"level": logLevel}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		observability.CLILogger.Error("Failed to load config", zap.Error(err))
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(foundry.ExitFileNotFound, "Config file not found", err)
		}
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}
