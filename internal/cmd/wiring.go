package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/internal/config"
	"github.com/auscope/vgljobs/pkg/catalog"
	"github.com/auscope/vgljobs/pkg/jobstorage"
	"github.com/auscope/vgljobs/pkg/jobstore"
	"github.com/auscope/vgljobs/pkg/monitor"
	"github.com/auscope/vgljobs/pkg/notify"
	"github.com/auscope/vgljobs/pkg/provider"
	fileprovider "github.com/auscope/vgljobs/pkg/provider/file"
	s3provider "github.com/auscope/vgljobs/pkg/provider/s3"
	"github.com/auscope/vgljobs/pkg/registration"
)

// openStore opens and migrates the job store.
func openStore(ctx context.Context, cfg *config.Config) (*jobstore.Store, error) {
	store, err := jobstore.Open(ctx, jobstore.Config{
		Driver:    cfg.Database.Driver,
		Path:      cfg.Database.Path,
		URL:       cfg.Database.URL,
		AuthToken: cfg.Database.AuthToken,
		DSN:       cfg.Database.DSN,
	})
	if err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to migrate job store", err)
	}
	return store, nil
}

func newOpener(ctx context.Context, cfg *config.Config) (provider.Opener, error) {
	switch cfg.Storage.Provider {
	case string(provider.ProviderFile):
		root, err := fileprovider.New(fileprovider.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid file storage", err)
		}
		return root, nil
	default:
		client, err := s3provider.NewClient(ctx, s3provider.Config{
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			Profile:         cfg.Storage.Profile,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
			MaxKeys:         cfg.Storage.MaxKeys,
		})
		if err != nil {
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
		}
		return client, nil
	}
}

func newStorageService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*jobstorage.Service, error) {
	opener, err := newOpener(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := jobstorage.New(opener, jobstorage.Config{
		PublicURLTemplate: cfg.Storage.PublicURLTemplate,
		Include:           cfg.Storage.Include,
		Exclude:           cfg.Storage.Exclude,
	}, logger.Named("storage"))
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid storage settings", err)
	}
	return svc, nil
}

func newCatalogClient(cfg *config.Config, logger *zap.Logger) (*catalog.GeonetworkClient, error) {
	client, err := catalog.NewGeonetworkClient(catalog.Config{
		URL:               cfg.Catalog.URL,
		Username:          cfg.Catalog.Username,
		Password:          cfg.Catalog.Password,
		PublicationPath:   cfg.Catalog.PublicationPath,
		Timeout:           cfg.Catalog.Timeout,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
		Burst:             cfg.Catalog.Burst,
	}, logger.Named("catalog"))
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid catalog settings", err)
	}
	return client, nil
}

// newPipeline builds the registration pipeline. A nil registrar is
// allowed for previews.
func newPipeline(store *jobstore.Store, storage *jobstorage.Service, registrar registration.Registrar, logger *zap.Logger) *registration.Pipeline {
	return registration.NewPipeline(store, storage, registrar, logger.Named("registration"))
}

// newStatusHandler builds the status-change reactor. Mail is wired only
// when enabled.
func newStatusHandler(store *jobstore.Store, cfg *config.Config, logger *zap.Logger) (*monitor.StatusChangeHandler[*jobstore.Job], error) {
	var mail monitor.MailSender[*jobstore.Job]
	if cfg.Mail.Enabled {
		sender, err := notify.NewSMTPSender(notify.Config{
			Host:         cfg.Mail.Host,
			Port:         cfg.Mail.Port,
			Username:     cfg.Mail.Username,
			Password:     cfg.Mail.Password,
			From:         cfg.Mail.From,
			StartTLS:     cfg.Mail.StartTLS,
			PortalURL:    cfg.Mail.PortalURL,
			BodyTemplate: cfg.Mail.BodyTemplate,
			Timeout:      cfg.Mail.Timeout,
		}, logger.Named("mail"))
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid mail settings", err)
		}
		mail = sender
	}
	return monitor.NewStatusChangeHandler[*jobstore.Job](store, mail, logger.Named("monitor")), nil
}

func parseJobID(raw string) (int64, error) {
	return parseID("job", raw)
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, exitError(foundry.ExitInvalidArgument, "Invalid "+kind+" id", fmt.Errorf("%q is not a positive integer", raw))
	}
	return id, nil
}
