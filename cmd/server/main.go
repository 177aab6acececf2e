// Package main is the entry point for the sheetsight server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sheetsight/internal/agent"
	"sheetsight/internal/config"
	"sheetsight/internal/job"
	"sheetsight/internal/logger"
	"sheetsight/internal/notify"
	"sheetsight/internal/observability"
	"sheetsight/internal/server"
	"sheetsight/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(db.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "sheetsight-server", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Analysis engine and orchestration
	engine, err := agent.NewSubprocessEngine(cfg.EngineCommand, slogger)
	if err != nil {
		log.Fatalf("Failed to configure engine: %v", err)
	}
	runner := agent.NewRunner(engine, cfg.OutputDir, slogger)
	notifier := notify.NewEmail(cfg.SendGridAPIKey, cfg.FromEmail, cfg.PublicBaseURL, slogger)

	jobs := job.NewStore()
	supervisor := job.NewSupervisor(jobs, db, runner, notifier, slogger, job.SupervisorConfig{
		SnapshotEvery: cfg.SnapshotEvery,
	})
	refiner := job.NewRefiner(supervisor, slogger)
	responder := agent.NewChatResponder(engine, cfg.OutputDir, slogger)
	chat := job.NewChatManager(supervisor, responder, slogger)

	if err := observability.RegisterActiveJobsGauge(supervisor.ActiveCount); err != nil {
		log.Printf("Failed to register active jobs gauge: %v", err)
	}

	// Reload interrupted jobs before accepting status requests.
	recovery := job.NewRecoveryManager(jobs, db, slogger, cfg.StaleAfter)
	restored, err := recovery.RestoreOnStartup(ctx)
	if err != nil {
		log.Fatalf("Startup recovery failed: %v", err)
	}
	log.Printf("Restored %d jobs from snapshots", restored)
	go recovery.Run(ctx, cfg.ReconcileInterval)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := server.New(server.Config{
		Addr:           addr,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	}, supervisor, refiner, chat, db, db, db, metricsHandler, slogger)

	go func() {
		log.Printf("Sheetsight server starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
