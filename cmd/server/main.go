package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/analyzer"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/browser"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/config"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/handlers"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/router"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/services"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/storage"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/tracer"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLoggerWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	shutdownTracer := tracer.Init(context.Background(), tracer.Options{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
	}, logger)

	// Staging
	stager, err := newStager(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize staging", "backend", cfg.StagingBackend, "error", err)
	}

	// Rule engine
	axeSource, err := analyzer.LoadAxeSource(cfg.AxeScriptPath)
	if err != nil {
		logger.Fatal("Failed to load axe-core", "path", cfg.AxeScriptPath, "error", err)
	}
	engine := analyzer.NewAxeAnalyzer(axeSource, cfg.AxeTags, logger)

	launcher := browser.NewChromeLauncher(browser.Options{
		ExecPath:  cfg.ChromePath,
		NoSandbox: cfg.ChromeNoSandbox,
		Logger:    logger,
	})

	checkService := services.NewService(stager, launcher, engine, services.OptionsFromConfig(cfg), logger)

	// Setup HTTP router
	routerOpts := router.Options{
		ServiceName: cfg.OTelServiceName,
		ViewerDir:   cfg.ViewerDir,
	}
	if cfg.StagingBackend == config.StagingBackendLocal {
		routerOpts.StagingDir = cfg.StagingDir
		routerOpts.StagingURLPath = cfg.StagingURLPath
	}
	checkHandler := handlers.NewAccessibilityHandler(checkService, handlers.Options{
		MaxBodyBytes:     cfg.MaxBodyBytes,
		ExposeErrorTrace: cfg.ExposeErrorTrace,
	}, logger)
	handler := router.NewRouter(checkHandler, routerOpts, logger)

	// A check may take minutes; the write timeout has to cover the whole workflow.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  120 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, stager, cfg, logger)

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "viewer_url", cfg.ViewerURL(), "staging_backend", cfg.StagingBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := shutdownTracer(ctx); err != nil {
		logger.Warn("Failed to flush traces", "error", err)
	}

	logger.Info("Server exited")
}

func newStager(cfg *config.Config) (storage.Stager, error) {
	if cfg.StagingBackend == config.StagingBackendS3 {
		return storage.NewS3Stager(cfg)
	}
	return storage.NewLocalStager(cfg.StagingDir, cfg.StagingURLPath)
}

// runSweeper removes staged files left behind by crashed runs, once at
// startup and then on every tick.
func runSweeper(ctx context.Context, stager storage.Stager, cfg *config.Config, logger *utils.Logger) {
	sweep := func() {
		res := stager.CleanStale(ctx, cfg.StagingMaxAge)
		if len(res.Removed) > 0 {
			logger.Info("Removed stale staged files", "count", len(res.Removed), "files", res.Removed)
		}
		for _, e := range res.Errors {
			logger.Warn("Failed to remove stale staged file", "name", e.Name, "error", e.Error)
		}
	}

	sweep()
	if cfg.StagingSweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.StagingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func writeTimeout(cfg *config.Config) time.Duration {
	readiness := time.Duration(cfg.ReadinessAttempts) * cfg.ReadinessInterval
	return cfg.LaunchTimeout + cfg.NavigationTimeout + readiness + cfg.RenderTimeout + cfg.AnalysisTimeout + time.Minute
}
