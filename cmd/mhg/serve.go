package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldward/manholeguard/internal/archive"
	"github.com/fieldward/manholeguard/internal/audit"
	"github.com/fieldward/manholeguard/internal/checkin"
	"github.com/fieldward/manholeguard/internal/config"
	"github.com/fieldward/manholeguard/internal/escalate"
	"github.com/fieldward/manholeguard/internal/fatigue"
	"github.com/fieldward/manholeguard/internal/gas"
	"github.com/fieldward/manholeguard/internal/notify"
	"github.com/fieldward/manholeguard/internal/oracle"
	"github.com/fieldward/manholeguard/internal/risk"
	"github.com/fieldward/manholeguard/internal/server"
	"github.com/fieldward/manholeguard/internal/store"
	"github.com/fieldward/manholeguard/internal/store/memory"
	"github.com/fieldward/manholeguard/internal/store/postgres"
	"github.com/fieldward/manholeguard/internal/watchdog"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the watchdog daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		if devMode {
			os.Setenv("MHG_DEV", "1")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		limits, err := config.LoadLimits(cfg.LimitsFile)
		if err != nil {
			return err
		}

		// Store.
		var st store.Store
		if cfg.DevMode {
			st = memory.New()
			logger.Info("using in-memory store (dev mode)")
		} else {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
		}

		// Notification gateway.
		var gateway notify.Gateway
		if cfg.NATSURL != "" {
			gw, err := notify.NewNATSGateway(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			gateway = gw
			logger.Info("notifications enabled", "nats_url", cfg.NATSURL)
		} else {
			gateway = &notify.NoopGateway{}
			logger.Info("notifications disabled (MHG_NATS_URL not set)")
		}

		// Safety components. External weather and certification feeds are
		// not integrated yet; the static oracle stands in behind the same
		// interfaces, wrapped in the caches the real ones will use.
		static := &oracle.StaticOracle{}
		weather := oracle.CachedWeather(static, 10*time.Minute)
		rainfall := oracle.CachedRainfall(static, 10*time.Minute)
		locator := oracle.CachedLocator(oracle.NoopLocator{}, time.Hour)

		evaluator := gas.New(st, limits.Gas)
		guard := fatigue.New(st, limits.Fatigue)
		ledger := checkin.New(st, limits.CheckIn, logger)
		auditLog := audit.New(st)
		engine := risk.New(st, evaluator, guard, weather, rainfall, static, logger)
		dispatcher := escalate.New(st, locator, gateway, logger)
		scheduler := watchdog.New(st, ledger, dispatcher, gateway, auditLog, limits.Watchdog, logger)

		guardServer := server.New(st, engine, evaluator, guard, ledger, dispatcher, auditLog, scheduler, logger)

		// HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: guardServer.NewHTTPHandler(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Watchdog scan loop.
		scheduler.Start()
		logger.Info("watchdog started", "tick_interval", limits.Watchdog.TickInterval)

		// Audit archive scheduler.
		var archiver *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			s3Dest, err := archive.NewS3Destination(
				context.Background(),
				cfg.ArchiveS3Bucket,
				cfg.ArchiveS3Prefix,
				cfg.ArchiveS3Region,
				cfg.ArchiveS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				archiver = archive.NewScheduler(st, []archive.Destination{s3Dest}, cfg.ArchiveInterval, logger)
				archiver.Start()
				logger.Info("audit archive started",
					"bucket", cfg.ArchiveS3Bucket, "interval", cfg.ArchiveInterval)
			}
		}

		logger.Info("manholeguard started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		scheduler.Stop()
		logger.Info("watchdog stopped")

		if archiver != nil {
			archiver.Stop()
			logger.Info("audit archive stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := gateway.Close(); err != nil {
			logger.Error("error closing gateway", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "run with an in-memory store")
}
