package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/alerting"
	"maintenance-monitor-backend/internal/analysis"
	"maintenance-monitor-backend/internal/db"
	"maintenance-monitor-backend/internal/ingest"
	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/notification"
	"maintenance-monitor-backend/internal/predictor"
	"maintenance-monitor-backend/internal/realtime"
	"maintenance-monitor-backend/internal/report"
	"maintenance-monitor-backend/internal/store"
)

// app wires every component of the service.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	clock    clock.Clock
	location *time.Location

	db         *gorm.DB
	store      store.Store
	metrics    *metrics.Metrics
	hub        *realtime.Hub
	webpush    *webpush.Options
	dispatcher *notification.Dispatcher
	generator  *alerting.Generator
	predictor  *predictor.Client
	ingest     *ingest.Service
	analyzer   *analysis.Analyzer
	tracker    *analysis.Tracker
	aggregator *report.Aggregator
	reports    *report.Sender
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	loc, err := time.LoadLocation(cfg.Reports.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", cfg.Reports.Timezone, err)
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		clock:    clock.RealClock{},
		location: loc,
		db:       gormDB,
		store:    store.NewGormStore(gormDB),
		metrics:  metrics.New(),
	}
	a.hub = realtime.NewHub(logger.Named("realtime"), a.metrics)

	if cfg.Notification.Push.PublicKey != "" && cfg.Notification.Push.PrivateKey != "" {
		a.webpush = &webpush.Options{
			VAPIDPublicKey:  cfg.Notification.Push.PublicKey,
			VAPIDPrivateKey: cfg.Notification.Push.PrivateKey,
			Subscriber:      cfg.Notification.Push.Subject,
			TTL:             cfg.Notification.Push.TTL,
		}
	} else {
		logger.Warn("VAPID keys are not configured, web push notifications are disabled")
	}

	mailer := notification.NewSMTPMailer(cfg.Notification.SMTP)
	a.dispatcher = notification.NewDispatcher(notification.Options{
		Workers:   cfg.Notification.WorkerPoolSize,
		QueueSize: cfg.Notification.QueueSize,
		Mailer:    mailer,
		Chat:      notification.NewWebhookNotifier(cfg.Notification.Slack),
		WebPush:   a.webpush,
	}, a.store, logger.Named("notification"), a.metrics)

	cooldown := alerting.NewCooldown(a.clock, cfg.Notification.Cooldown, cfg.Notification.CooldownExpiry)
	a.generator = alerting.NewGenerator(alerting.Config{
		DedupWindow: cfg.Notification.DedupWindow,
		BaseURL:     cfg.Reports.BaseURL,
	}, a.store, a.dispatcher, a.hub, cooldown, a.clock, logger.Named("alerting"), a.metrics)

	a.predictor = predictor.NewClient(cfg.Predictor, logger.Named("predictor"), a.metrics)
	var readingPredictor ingest.Predictor
	if cfg.Predictor.ConsultOnReading {
		readingPredictor = a.predictor
	}
	a.ingest = ingest.NewService(a.store, readingPredictor, a.generator, a.clock, logger.Named("ingest"), a.metrics)

	a.analyzer = analysis.NewAnalyzer(a.store, a.predictor, a.generator, a.clock, logger.Named("analysis"), a.metrics)
	a.tracker = analysis.NewTracker(a.analyzer, 24*time.Hour)

	a.aggregator = report.NewAggregator(a.store, a.clock, loc, logger.Named("report"))
	a.reports = report.NewSender(a.aggregator, mailer, logger.Named("report"), a.metrics)
	return a, nil
}

func (a *app) analysisOptions() analysis.Options {
	return analysis.Options{
		MinSensorKinds: a.cfg.Analysis.MinSensorKinds,
		AnalysisType:   a.cfg.Analysis.Type,
		GenerateAlerts: *a.cfg.Analysis.GenerateAlerts,
	}
}

// drain waits for queued notifications to be picked up, then stops the workers.
func (a *app) drain(cancel context.CancelFunc, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for len(a.dispatcher.Jobs()) > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	a.dispatcher.Wait()
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.logger.Sync()
}
