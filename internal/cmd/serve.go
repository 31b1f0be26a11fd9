package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/internal/observability"
	"github.com/auscope/vgljobs/internal/server"
	"github.com/auscope/vgljobs/internal/server/handlers"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the job registration service.

Routes:
  POST /jobs/{id}/register   publish the job's catalog record
  POST /jobs/{id}/status     record a status change ({"status":"Done"})
  POST /files/selected       list fileUrl entries of a file selection
  GET  /health, /health/live, /health/ready, /version

Example:
  vgljobs serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	srv := map[string]any{}
	if cmd.Flags().Changed("host") {
		srv["host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		srv["port"] = servePort
	}
	if len(srv) == 0 {
		return nil
	}
	return map[string]any{"server": srv}
}

// storeChecker reports the job store as healthy when it answers a ping.
type storeChecker struct {
	store *jobstore.Store
}

func (c storeChecker) CheckHealth(ctx context.Context) error {
	return c.store.DB().PingContext(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, serveOverrides(cmd))
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile, binaryName)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging settings", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	storage, err := newStorageService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	catalogClient, err := newCatalogClient(cfg, logger)
	if err != nil {
		return err
	}
	reactor, err := newStatusHandler(store, cfg, logger)
	if err != nil {
		return err
	}
	pipeline := newPipeline(store, storage, catalogClient, logger)

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("jobstore", storeChecker{store: store})

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithLogger(logger.Named("http")),
		server.WithHealthManager(health),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithJobsHandler(handlers.NewJobsHandler(pipeline, store, reactor, logger.Named("jobs"))),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	observability.CLILogger.Info("Starting server", zap.String("addr", srv.Addr()))
	if err := srv.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		observability.CLILogger.Info("Server stopped")
	}
	return nil
}
