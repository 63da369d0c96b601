package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftapp/rift/internal/capabilities"
	"github.com/riftapp/rift/internal/config"
	httpserver "github.com/riftapp/rift/internal/http"
	"github.com/riftapp/rift/internal/remote"
	"github.com/riftapp/rift/internal/session"
	"github.com/riftapp/rift/internal/store"
	appsync "github.com/riftapp/rift/internal/sync"
	"github.com/riftapp/rift/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Rift web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := newLogger()
	logger.Info("starting rift server")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DB.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	tr, err := tracker.New(ctx, st, logger)
	if err != nil {
		return err
	}

	var sessions *session.Manager
	var syncer *appsync.Synchronizer
	if cfg.SyncEnabled() {
		sessions, err = session.New(ctx, cfg, st, logger)
		if err != nil {
			return err
		}
		remoteClient := remote.NewClient(cfg, sessions, logger)
		syncer = appsync.New(st, remoteClient, sessions, logger)
		syncer.OnApply = tr.ReplaceAll
		tr.SetPusher(syncer)
		go syncer.Run(ctx)

		// Session restore on startup: resume if the token is still
		// comfortably valid, otherwise try one silent refresh. Either
		// way the server comes up; sync just stays disconnected.
		restored, err := sessions.Restore(ctx)
		if err != nil {
			logger.Warn("session restore failed", "error", err)
		}
		if restored {
			if err := syncer.Reconcile(ctx); err != nil {
				logger.Warn("initial reconciliation failed", "error", err)
			}
		}
	} else {
		logger.Info("remote sync not configured, running local-only")
	}

	caps := capabilities.NewClient(cfg.Capabilities.URL, logger)
	handler := httpserver.NewHandler(tr, sessions, syncer, caps, logger)
	router := httpserver.NewRouter(cfg, st, handler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
