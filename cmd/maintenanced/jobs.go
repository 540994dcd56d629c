package main

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"maintenance-monitor-backend/internal/db"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/mw"
	"maintenance-monitor-backend/internal/report"
)

const drainTimeout = 30 * time.Second

func newAnalyzeCommand() *cobra.Command {
	var (
		minKinds int
		noAlerts bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one batch risk analysis and print the result",
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

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a.dispatcher.Start(ctx)

			opts := a.analysisOptions()
			if cmd.Flags().Changed("min-sensor-kinds") {
				opts.MinSensorKinds = minKinds
			}
			if noAlerts {
				opts.GenerateAlerts = false
			}
			res, err := a.analyzer.Run(ctx, opts)
			a.drain(cancel, drainTimeout)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().IntVar(&minKinds, "min-sensor-kinds", 3, "minimum distinct sensor kinds with readings")
	cmd.Flags().BoolVar(&noAlerts, "no-alerts", false, "do not raise predictive alerts")
	return cmd
}

func newReportCommand() *cobra.Command {
	var (
		reportType string
		recipients []string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the maintenance report and mail it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ, err := report.ParseType(reportType)
			if err != nil {
				return err
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if len(recipients) == 0 {
				recipients = cfg.Reports.Recipients
			}
			req := report.Request{Type: typ, Recipients: recipients}
			if dryRun {
				r, err := a.aggregator.Build(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			}
			r, err := a.reports.Send(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report sent to %d recipients\n", len(r.Recipients))
			return nil
		},
	}
	cmd.Flags().StringVarP(&reportType, "type", "t", string(report.Daily), "report type: diario, semanal or mensual")
	cmd.Flags().StringSliceVar(&recipients, "recipient", nil, "recipient e-mail address (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the report instead of mailing it")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			gormDB, err := db.Open(&cfg.Database)
			if err != nil {
				return err
			}
			return db.Migrate(gormDB, &cfg.Database, logger)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		role    string
		email   string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if !model.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			auth := mw.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if !auth.Enabled() {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			now := time.Now()
			token, err := auth.Sign(mw.Claims{
				Role:  role,
				Email: email,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   subject,
					Issuer:    cfg.Auth.Issuer,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", model.RoleTechnician, "role claim")
	cmd.Flags().StringVar(&email, "email", "", "e-mail claim")
	cmd.Flags().StringVar(&subject, "subject", "", "subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
