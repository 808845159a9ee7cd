package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-intake/pkg/intake"
	"github.com/tendant/simple-intake/pkg/intake/api"
	"github.com/tendant/simple-intake/pkg/intake/config"
	"github.com/tendant/simple-intake/pkg/intake/rewrite"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port, backendURL, storageURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and, when enabled, the rewrite job",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if port != "" {
				opts = append(opts, config.WithPort(port))
			}
			if backendURL != "" {
				opts = append(opts, config.WithBackendURL(backendURL))
			}
			if storageURL != "" {
				opts = append(opts, config.WithStorageURL(storageURL))
			}

			cfg, logger, err := ctx.load(cmd, opts...)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(runCtx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	cmd.Flags().StringVar(&backendURL, "backend", "", "Content backend URL (overrides BACKEND_URL)")
	cmd.Flags().StringVar(&storageURL, "storage", "", "Upload storage URL (overrides STORAGE_URL)")
	return cmd
}

// buildHandler wires the pipeline, admin panel and router from cfg
func buildHandler(cfg *config.Config, store intake.Store, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	blobs, storeName, err := cfg.BuildBlobStore()
	if err != nil {
		return nil, err
	}

	pipeline, err := cfg.BuildPipeline(store, blobs, storeName, logger)
	if err != nil {
		return nil, err
	}

	forms := intake.DefaultForms()
	pages, err := api.NewPages(forms, logger)
	if err != nil {
		return nil, err
	}

	var admin *api.AdminHandler
	if cfg.Admin.Enabled() {
		hash, err := cfg.AdminPasswordHash()
		if err != nil {
			return nil, err
		}
		admin, err = api.NewAdminHandler(api.AdminConfig{
			Store:        store,
			Forms:        forms,
			Pages:        pages,
			Username:     cfg.Admin.Username,
			PasswordHash: hash,
			SecretKey:    cfg.Admin.SecretKey,
			SessionTTL:   cfg.Admin.SessionTTL,
			SecureCookie: !cfg.IsDevelopment(),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Admin panel disabled: no admin password configured")
	}

	var ready func(ctx context.Context) error
	if pinger, ok := store.(rewrite.Pinger); ok {
		ready = pinger.Ping
	}

	return api.NewRouter(api.RouterConfig{
		Pipeline:       pipeline,
		Forms:          forms,
		Store:          store,
		Admin:          admin,
		Pages:          pages,
		APIKeySHA256:   cfg.APIKeySHA256,
		UploadDir:      cfg.UploadDir(),
		MaxUploadBytes: cfg.Upload.MaxBytes,
		RateLimit:      cfg.RateLimit,
		Development:    cfg.IsDevelopment(),
		Ready:          ready,
		Logger:         logger,
	})
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, cleanup, err := cfg.BuildStore(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	handler, err := buildHandler(cfg, store, logger)
	if err != nil {
		return err
	}

	var job *rewrite.Job
	if cfg.Rewrite.Enabled {
		if job, err = cfg.BuildRewriteJob(ctx, store, logger); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Port, "backend", config.RedactedURL(cfg.BackendURL), "storage", config.RedactedURL(cfg.StorageURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if job != nil {
		g.Go(func() error {
			return job.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exiting")
	return nil
}
