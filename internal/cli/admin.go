package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blinktext/internal/cleanup"
	"github.com/blinktext/internal/config"
	"github.com/blinktext/internal/logging"
	"github.com/blinktext/internal/storage"
	"github.com/blinktext/internal/store"
	"github.com/blinktext/internal/text"
)

// Admin commands talk to the database directly and read the server's configuration.

func (a *app) loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Logging)
	logger.SetOutput(a.stderr)
	return cfg, logger, nil
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Type == "memory" {
				return fmt.Errorf("database type %q has no schema to migrate", cfg.Database.Type)
			}

			db, err := store.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := store.MigrationVersion(db.SQL(), db.Dialect())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, successStyle.Render(fmt.Sprintf("✓ %s schema at version %d", db.Dialect(), version)))
			return nil
		},
	}
}

func (a *app) sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete every expired text once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.loadConfig()
			if err != nil {
				return err
			}

			backend, err := store.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			svc, err := newTextService(cmd.Context(), cfg, backend, logger)
			if err != nil {
				return err
			}

			sweeper := cleanup.NewSweeper(svc, cleanup.Config{Timeout: cfg.Cleanup.Timeout}, logger)
			deleted, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, successStyle.Render(fmt.Sprintf("✓ %d expired text(s) deleted", deleted)))
			return nil
		},
	}
}

// newTextService builds the text service with the configured content storage.
func newTextService(ctx context.Context, cfg *config.Config, backend *store.Backend, logger logrus.FieldLogger) (*text.Service, error) {
	opts := text.Options{
		MaxContentLength:  cfg.Texts.MaxContentLength,
		DefaultExpiration: cfg.Texts.DefaultExpiration,
		MinPasswordLength: cfg.Texts.MinPasswordLength,
		MaxExpiration:     cfg.Texts.MaxExpiration,
		BcryptCost:        cfg.Auth.BcryptCost,
		Logger:            logger,
	}
	if cfg.Storage.Type == "minio" {
		objects, err := storage.NewService(cfg.Storage.MinIO)
		if err != nil {
			return nil, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		opts.Content = objects
	}
	return text.NewService(backend.Texts, opts), nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the blinkctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.stdout, "blinkctl "+Version)
		},
	}
}
