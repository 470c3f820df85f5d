package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-assembler/internal/hls"
	"hls-assembler/internal/orchestrator"
	"hls-assembler/internal/platform/config"
	"hls-assembler/internal/platform/logger"
	"hls-assembler/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	scratchDir := config.GetEnv("SCRATCH_DIR", "./scratch")
	outputDir := config.GetEnv("OUTPUT_DIR", "./output")
	concurrency := config.GetEnvInt("FETCH_CONCURRENCY", hls.DefaultConcurrency)
	headerLines := config.GetEnvInt("PLAYLIST_HEADER_LINES", hls.DefaultHeaderLines)
	maxJobs := config.GetEnvInt("MAX_CONCURRENT_JOBS", orchestrator.DefaultMaxConcurrentJobs)
	fetchTimeout := config.GetEnvDuration("FETCH_TIMEOUT", 60*time.Second)
	fetchCfg := hls.FetcherConfig{
		MaxAttempts:        config.GetEnvInt("FETCH_MAX_ATTEMPTS", hls.DefaultMaxAttempts),
		InitialBackoff:     config.GetEnvDuration("FETCH_INITIAL_BACKOFF", hls.DefaultInitialBackoff),
		MaxBackoff:         config.GetEnvDuration("FETCH_MAX_BACKOFF", hls.DefaultMaxBackoff),
		AllowUnknownLength: config.GetEnvBool("FETCH_ALLOW_UNKNOWN_LENGTH", false),
	}

	log := logger.New(logLevel, logFormat)

	headers, err := hls.LoadHeaders(config.GetEnv("HEADERS_FILE", ""))
	if err != nil {
		log.Error("load request headers", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	client := &http.Client{
		Timeout:   fetchTimeout,
		Transport: &hls.HeaderMapTransport{Headers: headers, Base: http.DefaultTransport},
	}
	fetcher := hls.NewFetcher(client, fetchCfg, log, met)
	engine := hls.NewEngine(hls.EngineConfig{
		ScratchDir:  scratchDir,
		OutputDir:   outputDir,
		HeaderLines: headerLines,
		Concurrency: concurrency,
	}, fetcher, log, met)

	repo := orchestrator.NewInMemoryRepository()
	svc := orchestrator.NewService(repo, engine, maxJobs, log, met)
	h := orchestrator.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveJobs(svc.ActiveJobCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"scratch_dir", scratchDir,
		"output_dir", outputDir,
		"fetch_concurrency", concurrency,
		"fetch_max_attempts", fetcher.MaxAttempts(),
		"max_concurrent_jobs", maxJobs,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if err := svc.Shutdown(ctx); err != nil {
		log.Error("jobs did not stop in time", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
