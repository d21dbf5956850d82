package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"

	"github.com/earnhub/backend/internal/auth"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/dashboard"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/jobs"
	"github.com/earnhub/backend/internal/realtime"
	"github.com/earnhub/backend/internal/referral"
	"github.com/earnhub/backend/internal/router"
	"github.com/earnhub/backend/internal/services"
	"github.com/earnhub/backend/internal/wallet"
	"github.com/earnhub/backend/internal/works"
)

const (
	shutdownGrace = 15 * time.Second
	reapEvery     = time.Minute
	maxIdle       = 2 * time.Minute
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("skip-migrate", false, "Do not apply schema migrations on start")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket hub and background workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if skip, _ := cmd.Flags().GetBool("skip-migrate"); !skip {
		if err := migrateAll(ctx, cfg, true, log); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	validator, err := services.NewValidator()
	if err != nil {
		return fmt.Errorf("compile request schemas: %w", err)
	}
	handler := router.New(router.Handlers{
		Auth:      auth.NewHandler(a.auth, log),
		Jobs:      jobs.NewHandler(a.jobs, log),
		Works:     works.NewHandler(a.works, log),
		Referrals: referral.NewHandler(a.referrals, log),
		Wallet:    wallet.NewHandler(a.wallet, log),
		Dashboard: dashboard.NewHandler(a.feed, a.stats, a.hub, log),
		Realtime:  realtime.NewHandler(a.hub, a.auth, cfg.Server.AllowedOrigins, log),
	}, a.auth, validator, router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsEnabled: cfg.Server.MetricsEnabled,
	})

	if err := a.river.Start(ctx); err != nil {
		return fmt.Errorf("start river: %w", err)
	}
	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx, a.redis); err != nil && ctx.Err() == nil {
				log.Error("redis bridge stopped", "error", err)
			}
		}()
	}
	go reap(ctx, a.hub, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := a.river.Stop(shutdownCtx); err != nil {
		log.Warn("river shutdown", "error", err)
	}
	return nil
}

func reap(ctx context.Context, hub *realtime.Hub, log *slog.Logger) {
	t := time.NewTicker(reapEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := hub.Reap(maxIdle); n > 0 {
				log.Info("reaped idle websockets", "count", n)
			}
		}
	}
}

// migrateAll moves the app schema and river's own tables together.
func migrateAll(ctx context.Context, cfg config.Config, up bool, log *slog.Logger) error {
	if up {
		if err := database.Migrate(cfg.Database.URL, true, log); err != nil {
			return err
		}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	dir, opts := rivermigrate.DirectionUp, (*rivermigrate.MigrateOpts)(nil)
	if !up {
		// -1 drops every river table rather than stepping back once.
		dir, opts = rivermigrate.DirectionDown, &rivermigrate.MigrateOpts{TargetVersion: -1}
	}
	if _, err := migrator.Migrate(ctx, dir, opts); err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	log.Info("river migrations applied", "up", up)

	if !up {
		return database.Migrate(cfg.Database.URL, false, log)
	}
	return nil
}
