// Package main provides the entry point for the floodgate server, a
// DDoS incident indicator pipeline feeding a MISP-compatible sharing
// platform.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/classify"
	"github.com/hmtran/floodgate/internal/config"
	"github.com/hmtran/floodgate/internal/gateway"
	"github.com/hmtran/floodgate/internal/ingest"
	"github.com/hmtran/floodgate/internal/jobs"
	"github.com/hmtran/floodgate/internal/misp"
	"github.com/hmtran/floodgate/internal/observability"
	"github.com/hmtran/floodgate/internal/pipeline"
	"github.com/hmtran/floodgate/internal/publish"
	"github.com/hmtran/floodgate/internal/snapshot"
	"github.com/hmtran/floodgate/internal/stats"
	"github.com/hmtran/floodgate/internal/watch"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("floodgate %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		ServiceName: "floodgate",
		Version:     Version,
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting floodgate",
		zap.String("version", Version),
		zap.String("config", *configPath))

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatal("initialization failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.Watch.Dir, srv.ingestFile, logger)
		if err != nil {
			logger.Fatal("watch init failed", zap.Error(err))
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	srv.jobs.Wait()
	srv.close()
	logger.Info("server stopped")
}

// server wires the pipeline components behind the HTTP surface. All
// dependencies are explicit fields; nothing reads ambient state after
// construction.
type server struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	pipeline  *pipeline.Pipeline
	jobs      *jobs.Manager
	platform  *misp.Client
	store     snapshot.Store
	publisher *publish.Publisher
	limiter   *gateway.RateLimiter
	redis     *redis.Client
}

func newServer(cfg *config.Config, logger *zap.Logger) (*server, error) {
	metrics := observability.NewMetrics()

	var redisClient *redis.Client
	var store snapshot.Store
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: os.Getenv(cfg.Redis.PasswordEnv),
			DB:       cfg.Redis.DB,
		})
		store = snapshot.NewRedisStore(redisClient, cfg.Redis.SnapshotKey, cfg.Redis.SnapshotTTL)
		logger.Info("using redis snapshot store", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = snapshot.NewFileStore("data/snapshot.json")
		logger.Info("using file snapshot store")
	}

	var platform *misp.Client
	if cfg.MISP.Enabled {
		// The key is read from the environment exactly once and threaded
		// through explicitly.
		apiKey := os.Getenv(cfg.MISP.APIKeyEnv)
		client, err := misp.NewClient(misp.Config{
			BaseURL:      cfg.MISP.BaseURL,
			APIKey:       apiKey,
			VerifySSL:    cfg.MISP.VerifySSL,
			Timeout:      cfg.MISP.Timeout,
			PollInterval: cfg.MISP.PollInterval,
			PollAttempts: cfg.MISP.PollAttempts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("platform client: %w", err)
		}
		platform = client
	}

	var publisher *publish.Publisher
	if cfg.NATS.Enabled {
		p, err := publish.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Warn("nats unavailable, notices disabled", zap.Error(err))
		} else {
			publisher = p
		}
	}

	pl := pipeline.New(logger, metrics).
		WithParser(ingest.NewParser(logger).WithLimits(cfg.Ingest.MaxFileBytes, cfg.Ingest.MaxRecords))

	var submitter jobs.Submitter
	if platform != nil {
		submitter = platform
	}

	return &server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		pipeline:  pl,
		jobs:      jobs.NewManager(pl, submitter, publisher, logger).WithMetrics(metrics),
		platform:  platform,
		store:     store,
		publisher: publisher,
		limiter: gateway.NewRateLimiter(redisClient, gateway.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			IncludeHeaders:    true,
		}, logger),
		redis: redisClient,
	}, nil
}

func (s *server) close() {
	s.publisher.Close()
	if s.redis != nil {
		s.redis.Close()
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", observability.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware())

		r.Post("/upload/csv", s.handleUpload(pipeline.FormatCSV))
		r.Post("/upload/json", s.handleUpload(pipeline.FormatJSON))

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)

		r.Get("/stats", s.handleStats)
		r.Post("/refresh", s.handleRefresh)
	})

	return r
}

// Health and readiness handlers

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.platform != nil {
		if err := s.platform.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Upload handlers

func (s *server) handleUpload(format pipeline.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.Ingest.MaxFileBytes+1))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
			return
		}
		if len(data) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty request body"})
			return
		}

		dryRun := r.URL.Query().Get("dry_run") == "true"
		job := s.jobs.Submit(data, format, dryRun)
		s.metrics.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, "202").Inc()

		writeJSON(w, http.StatusAccepted, job)
	}
}

// ingestFile feeds a dropped file into the job manager. Format follows
// the file extension; the watcher only passes .csv and .json paths.
func (s *server) ingestFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to read dropped file",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	format := pipeline.FormatCSV
	if len(path) > 5 && path[len(path)-5:] == ".json" {
		format = pipeline.FormatJSON
	}
	job := s.jobs.Submit(data, format, false)
	s.logger.Info("dropped file queued",
		zap.String("path", path),
		zap.String("job_id", job.ID))
}

// Job handlers

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.jobs.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch err := s.jobs.Cancel(id); err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	case jobs.ErrJobNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	}
}

// Read-side handlers

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Load(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRefresh pulls the shared events from the platform, filters out
// max-sensitivity material, recomputes the metrics and persists the
// snapshot.
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.platform == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sharing platform not configured"})
		return
	}

	events, err := s.platform.FetchEvents(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	shareable := classify.Shareable(events, true)
	snap := &snapshot.Snapshot{
		LastUpdated: time.Now().UTC(),
		Metrics:     stats.Aggregate(shareable, time.Now()),
		Events:      shareable,
	}
	if prev, err := s.store.Load(r.Context()); err == nil {
		snap.Stats = prev.Stats
	}

	if err := s.store.Save(r.Context(), snap); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("snapshot refreshed",
		zap.Int("fetched", len(events)),
		zap.Int("shareable", len(shareable)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fetched":   len(events),
		"shareable": len(shareable),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
