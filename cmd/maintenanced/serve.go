package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"maintenance-monitor-backend/internal/api"
	"maintenance-monitor-backend/internal/ingest"
	"maintenance-monitor-backend/internal/mw"
	"maintenance-monitor-backend/internal/report"
	"maintenance-monitor-backend/internal/scheduler"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, ingestion and scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	reportType, err := report.ParseType(cfg.Reports.Type)
	if err != nil {
		return err
	}
	g, gCtx := errgroup.WithContext(ctx)

	a.dispatcher.Start(gCtx)
	g.Go(func() error {
		a.hub.Run(gCtx)
		return nil
	})

	sched := scheduler.New(scheduler.Config{
		AnalysisEnabled:  cfg.Analysis.Enabled,
		AnalysisInterval: cfg.Analysis.Interval,
		AnalysisOptions:  a.analysisOptions(),
		ReportsEnabled:   cfg.Reports.Enabled,
		ReportType:       reportType,
		SendHour:         cfg.Reports.SendHour,
		Location:         a.location,
		Recipients:       cfg.Reports.Recipients,
	}, a.analyzer, a.reports, a.clock, logger.Named("scheduler"))
	g.Go(func() error {
		sched.Run(gCtx)
		return nil
	})

	if cfg.MQTT.Enabled {
		broker, err := ingest.NewBroker(cfg.MQTT, a.ingest, logger.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("failed to create MQTT broker: %w", err)
		}
		g.Go(func() error { return broker.Run(gCtx) })
	}

	handler := api.NewHandler(api.Deps{
		Store:            a.store,
		Recorder:         a.ingest,
		Analysis:         a.tracker,
		Builder:          a.aggregator,
		Reports:          a.reports,
		WebPush:          a.webpush,
		Clock:            a.clock,
		Logger:           logger.Named("api"),
		Background:       gCtx,
		AnalysisDefaults: a.analysisOptions(),
	})
	router := api.NewRouter(handler, api.RouterOptions{
		Server:  cfg.Server,
		Auth:    mw.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics: a.metrics.Handler(),
		WS:      a.hub.ServeWS,
		Logger:  logger.Named("http"),
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured, API authentication is disabled")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	g.Go(func() error {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutdown signal received, stopping services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server Shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.dispatcher.Wait()
	if err != nil {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}
