package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/refermed/refermed/internal/config"
	"github.com/refermed/refermed/internal/domain/agent"
	"github.com/refermed/refermed/internal/domain/payout"
	"github.com/refermed/refermed/internal/domain/rates"
	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/domain/report"
	"github.com/refermed/refermed/internal/domain/settlement"
	"github.com/refermed/refermed/internal/platform/auth"
	"github.com/refermed/refermed/internal/platform/db"
	"github.com/refermed/refermed/internal/platform/jobs"
	"github.com/refermed/refermed/internal/platform/middleware"
	"github.com/refermed/refermed/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "refermed-server",
		Short: "Referral settlement API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(payoutsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the settlement API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// ingestCmd runs one ingestion batch and exits. Same code path as the
// scheduled job and the manual HTTP trigger.
func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one report ingestion batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.ReportSourceURL == "" {
				return fmt.Errorf("REPORT_SOURCE_URL is not configured")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			matcher := report.NewMatcher(cfg.MatchAutoThreshold, cfg.MatchReviewThreshold)
			svc := report.NewService(report.NewRepoPG(pool), referral.NewRepoPG(pool), matcher, logger)
			producer := report.NewHTTPProducer(cfg.ReportSourceURL, cfg.ReportSourceToken, cfg.ReportSourceTimeout, logger)

			stored, err := svc.Ingest(ctx, producer, cfg.IngestBatchSize)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %d new report(s).\n", stored)
			return nil
		},
	}
}

// payoutsCmd polls the provider once for non-terminal payments and exits.
func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Manage payout submissions",
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Poll the provider for payment status updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			provider := payout.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderToken, cfg.ProviderTimeout, logger)
			gateway := payout.NewGateway(payout.NewRepoPG(pool), agent.NewRepoPG(pool), provider, &notification.LogSink{Logger: logger}, logger)

			finalized, err := gateway.SyncStatuses(ctx, cfg.PayoutSyncBatchSize)
			if err != nil {
				return err
			}
			fmt.Printf("Finalized %d payment(s).\n", finalized)
			return nil
		},
	}
	cmd.AddCommand(syncCmd)

	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	// Logger
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Notifications go to the process log until a real transport is wired.
	var sink notification.Sink = &notification.LogSink{Logger: logger}

	// Commission tiers
	tierRepo := rates.NewTierRepoPG(pool)
	ratesSvc := rates.NewService(tierRepo)
	ratesHandler := rates.NewHandler(ratesSvc)
	ratesHandler.RegisterRoutes(apiV1)

	// Referrals
	referralRepo := referral.NewRepoPG(pool)
	referralSvc := referral.NewService(referralRepo)
	referralHandler := referral.NewHandler(referralSvc)
	referralHandler.RegisterRoutes(apiV1)

	// Agents
	agentRepo := agent.NewRepoPG(pool)
	agentSvc := agent.NewService(agentRepo)
	agentHandler := agent.NewHandler(agentSvc)
	agentHandler.RegisterRoutes(apiV1)

	// Clinic reports + matcher
	matcher := report.NewMatcher(cfg.MatchAutoThreshold, cfg.MatchReviewThreshold)
	reportRepo := report.NewRepoPG(pool)
	reportSvc := report.NewService(reportRepo, referralRepo, matcher, logger)
	reportHandler := report.NewHandler(reportSvc)
	reportHandler.RegisterRoutes(apiV1)

	var producer report.Producer
	if cfg.ReportSourceURL != "" {
		producer = report.NewHTTPProducer(cfg.ReportSourceURL, cfg.ReportSourceToken, cfg.ReportSourceTimeout, logger)
	}
	ingestHandler := report.NewIngestHandler(reportSvc, producer, cfg.IngestBatchSize)
	ingestHandler.RegisterRoutes(apiV1)

	// Payouts
	provider := payout.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderToken, cfg.ProviderTimeout, logger)
	paymentRepo := payout.NewRepoPG(pool)
	gateway := payout.NewGateway(paymentRepo, agentRepo, provider, sink, logger)
	payoutHandler := payout.NewHandler(gateway, cfg.PayoutSyncBatchSize)
	payoutHandler.RegisterRoutes(apiV1)

	// Settlement
	runInTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	orch := settlement.NewOrchestrator(reportRepo, referralRepo, agentRepo, tierRepo, paymentRepo, gateway, runInTx, sink, logger)
	settlementHandler := settlement.NewHandler(orch)
	settlementHandler.RegisterRoutes(apiV1)

	// Background jobs
	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	runner := jobs.NewRunner(logger)
	if producer != nil {
		runner.Register(jobs.Job{
			Name:     "report_ingest",
			Interval: cfg.IngestInterval,
			Run: func(ctx context.Context) error {
				_, err := reportSvc.Ingest(ctx, producer, cfg.IngestBatchSize)
				return err
			},
		})
	}
	runner.Register(jobs.Job{
		Name:     "payout_sync",
		Interval: cfg.PayoutSyncInterval,
		Run: func(ctx context.Context) error {
			_, err := gateway.SyncStatuses(ctx, cfg.PayoutSyncBatchSize)
			return err
		},
	})
	runner.Start(jobsCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopJobs()
	runner.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
