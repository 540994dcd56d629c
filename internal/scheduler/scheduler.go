package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/internal/analysis"
	"maintenance-monitor-backend/internal/report"
)

// Analyzer runs one batch analysis.
type Analyzer interface {
	Run(ctx context.Context, opts analysis.Options) (*analysis.Result, error)
}

// ReportSender builds and mails one report.
type ReportSender interface {
	Send(ctx context.Context, req report.Request) (*report.Report, error)
}

// Config controls both periodic jobs.
type Config struct {
	AnalysisEnabled  bool
	AnalysisInterval time.Duration
	AnalysisOptions  analysis.Options

	ReportsEnabled bool
	ReportType     report.Type
	SendHour       int
	Location       *time.Location
	Recipients     []string
}

// Scheduler triggers the batch analysis on a fixed interval and the maintenance report once a
// day at the configured hour.
type Scheduler struct {
	cfg      Config
	analyzer Analyzer
	reports  ReportSender
	clock    clock.Clock
	logger   *zap.Logger
}

// New creates a scheduler.
func New(cfg Config, a Analyzer, r ReportSender, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = time.Hour
	}
	return &Scheduler{cfg: cfg, analyzer: a, reports: r, clock: clk, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if s.cfg.AnalysisEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runAnalysis(ctx)
		}()
	} else {
		s.logger.Info("scheduled analysis is disabled")
	}
	if s.cfg.ReportsEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runReports(ctx)
		}()
	} else {
		s.logger.Info("scheduled reports are disabled")
	}
	wg.Wait()
}

func (s *Scheduler) runAnalysis(ctx context.Context) {
	s.logger.Info("starting analysis schedule", zap.Duration("interval", s.cfg.AnalysisInterval))

	timer := s.clock.NewTimer(s.cfg.AnalysisInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("analysis schedule shutting down")
			return
		case <-timer.C():
			s.AnalyzeOnce(ctx)
			timer.Reset(s.cfg.AnalysisInterval)
		}
	}
}

// AnalyzeOnce runs one batch analysis and logs its outcome.
func (s *Scheduler) AnalyzeOnce(ctx context.Context) {
	res, err := s.analyzer.Run(ctx, s.cfg.AnalysisOptions)
	switch {
	case errors.Is(err, analysis.ErrPredictorUnavailable):
		s.logger.Warn("scheduled analysis skipped, prediction service unavailable")
	case err != nil:
		s.logger.Error("scheduled analysis failed", zap.Error(err))
	default:
		s.logger.Info("scheduled analysis finished",
			zap.String("run_id", res.ID),
			zap.Int("analyzed", res.Analyzed),
			zap.Int("alerts", res.AlertsGenerated),
			zap.Int("errors", res.Errors))
	}
}

func (s *Scheduler) runReports(ctx context.Context) {
	for {
		now := s.clock.Now()
		next := NextRun(now, s.cfg.SendHour, s.cfg.Location)
		s.logger.Info("next maintenance report scheduled", zap.Time("at", next), zap.String("type", string(s.cfg.ReportType)))

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("report schedule shutting down")
			return
		case <-timer.C():
		}

		if req, due := ReportRequest(s.cfg.ReportType, s.clock.Now().In(s.cfg.Location), s.cfg.Recipients); due {
			s.SendReportOnce(ctx, req)
		}
	}
}

// SendReportOnce sends one report and logs its outcome.
func (s *Scheduler) SendReportOnce(ctx context.Context, req report.Request) {
	if _, err := s.reports.Send(ctx, req); err != nil {
		s.logger.Error("scheduled report failed", zap.String("type", string(req.Type)), zap.Error(err))
	}
}

// NextRun returns the first time strictly after now at hour:00 in loc.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, hour, 0, 0, 0, loc)
	}
	return next
}

// ReportRequest returns the request of a scheduled report sent at now, covering the last
// complete period. Weekly reports are due on Mondays and monthly reports on the first day of
// the month; due is false on other days.
func ReportRequest(t report.Type, now time.Time, recipients []string) (report.Request, bool) {
	switch t {
	case report.Weekly:
		if now.Weekday() != time.Monday {
			return report.Request{}, false
		}
	case report.Monthly:
		if now.Day() != 1 {
			return report.Request{}, false
		}
	default:
		t = report.Daily
	}

	current := report.PeriodFor(t, now)
	previous := report.PeriodFor(t, current.Start.Add(-time.Nanosecond))
	return report.Request{Type: t, Start: &previous.Start, End: &previous.End, Recipients: recipients}, true
}
