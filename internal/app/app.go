// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/tyfong/aiparserpipeline/internal/checkpoint"
	"github.com/tyfong/aiparserpipeline/internal/clock/system"
	"github.com/tyfong/aiparserpipeline/internal/config"
	"github.com/tyfong/aiparserpipeline/internal/fetchcache"
	"github.com/tyfong/aiparserpipeline/internal/fetcher"
	collyfetcher "github.com/tyfong/aiparserpipeline/internal/fetcher/colly"
	"github.com/tyfong/aiparserpipeline/internal/fetcher/headless"
	"github.com/tyfong/aiparserpipeline/internal/id/uuid"
	"github.com/tyfong/aiparserpipeline/internal/limiter"
	"github.com/tyfong/aiparserpipeline/internal/llm"
	"github.com/tyfong/aiparserpipeline/internal/metrics"
	"github.com/tyfong/aiparserpipeline/internal/orchestrator"
	"github.com/tyfong/aiparserpipeline/internal/pipeline"
	"github.com/tyfong/aiparserpipeline/internal/prompt"
	"github.com/tyfong/aiparserpipeline/internal/publisher/memory"
	gcppublisher "github.com/tyfong/aiparserpipeline/internal/publisher/pubsub"
	"github.com/tyfong/aiparserpipeline/internal/ratelimit"
	"github.com/tyfong/aiparserpipeline/internal/report"
	"github.com/tyfong/aiparserpipeline/internal/storage/atomic"
	"github.com/tyfong/aiparserpipeline/internal/storage/gcs"
)

// App holds all the shared, long-lived services for the application. It
// is initialized once at startup and handed to the command layer, which
// drives a run through the orchestrator and report writer.
type App struct {
	logger       *zap.Logger
	cfg          config.Config
	orchestrator *orchestrator.Orchestrator
	checkpoint   *checkpoint.Store
	report       *report.Writer

	headlessFetcher *headless.Fetcher
	pubsubClient    *pubsubv2.Client
	pubsubPublisher *pubsubv2.Publisher
	gcsUploader     *gcs.Uploader
	metricsServer   *http.Server
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Orchestrator returns the configured batch orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Checkpoint returns the checkpoint store for the run.
func (a *App) Checkpoint() *checkpoint.Store {
	return a.checkpoint
}

// Report returns the readout writer.
func (a *App) Report() *report.Writer {
	return a.report
}

// New creates and wires every service from configuration. It fails fast
// if any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	logger.Info("initializing application services")

	a := &App{logger: logger, cfg: cfg}

	clk := system.New()
	ids := uuid.NewUUIDGenerator()

	store, err := atomic.New(atomic.Config{
		BaseDir:     cfg.Cache.Dir,
		RetryBase:   time.Duration(cfg.Cache.RetryBaseMs) * time.Millisecond,
		MaxAttempts: cfg.Cache.MaxAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize cache store: %w", err)
	}
	cache := fetchcache.New(store, logger)

	ckpt, err := checkpoint.New(cfg.Pipeline.CheckpointPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize checkpoint: %w", err)
	}
	a.checkpoint = ckpt

	lim, err := limiter.New(cfg.Pipeline.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("initialize limiter: %w", err)
	}

	fetchStack, err := a.buildFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	processor, err := llm.New(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize llm client: %w", err)
	}

	loader, err := prompt.NewLoader(cfg.Prompts.Dir, cfg.Prompts.Base, cfg.Prompts.Count)
	if err != nil {
		return nil, fmt.Errorf("initialize prompt loader: %w", err)
	}
	prompts, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	pub, err := a.buildPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(
		fetchStack,
		processor,
		pub,
		clk,
		ids,
		cache,
		ckpt,
		lim,
		prompts,
		orchestrator.Config{
			Topic:         cfg.PubSub.TopicName,
			FlushInterval: cfg.FlushInterval(),
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize orchestrator: %w", err)
	}
	a.orchestrator = orch

	var uploader report.Uploader
	if cfg.Storage.GCSBucket != "" {
		gcsUp, err := gcs.New(ctx, cfg.Storage.GCSBucket, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs uploader: %w", err)
		}
		a.gcsUploader = gcsUp
		uploader = gcsUp
		logger.Info("readouts will be mirrored to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
	}

	writer, err := report.NewWriter(cfg.Output.Dir, clk, uploader, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize report writer: %w", err)
	}
	a.report = writer

	if cfg.Metrics.Enabled {
		a.startMetricsServer(cfg.Metrics.Port)
	}

	logger.Info("application services initialized")
	return a, nil
}

// buildFetcher assembles the probe fetcher, optional headless fetcher,
// and the promotion detector behind the per-domain rate limiter.
func (a *App) buildFetcher(cfg config.Config, logger *zap.Logger) (pipeline.Fetcher, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})

	rl := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.DomainRPS,
		DefaultBurst: cfg.Fetch.DomainBurst,
	})

	// The stub keeps the promotion path total when headless rendering is
	// off; the nil detector means it is only reached as a fallback.
	var headlessFetcher pipeline.Fetcher = headless.NewNoop()
	var detector fetcher.Detector
	if cfg.Headless.Enabled {
		hf, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize headless fetcher: %w", err)
		}
		a.headlessFetcher = hf
		headlessFetcher = hf
		detector = fetcher.NewHeuristic(cfg.Headless.BodyThreshold)
		logger.Info("headless promotion enabled",
			zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	return fetcher.NewPromoting(probe, headlessFetcher, detector, rl, logger)
}

// buildPublisher returns the completion-event publisher for the
// configured mode. A nil publisher disables events entirely.
func (a *App) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.Publisher, error) {
	switch cfg.PubSub.Mode {
	case "", "none":
		return nil, nil
	case "memory":
		logger.Info("using in-memory publisher, events stay local")
		return memory.New(), nil
	case "gcp":
		client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = client.Publisher(cfg.PubSub.TopicName)
		logger.Info("connected to gcp pub/sub",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName))
		return gcppublisher.New(a.pubsubPublisher), nil
	default:
		return nil, fmt.Errorf("unknown pubsub mode: %s", cfg.PubSub.Mode)
	}
}

func (a *App) startMetricsServer(port int) {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		a.logger.Info("metrics server listening", zap.Int("port", port))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down every service the App owns. Called by a
// Cobra hook after the command finishes.
func (a *App) Close() {
	a.logger.Info("shutting down application services")

	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsUploader != nil {
		if err := a.gcsUploader.Close(); err != nil {
			a.logger.Warn("error closing gcs client", zap.Error(err))
		}
	}
	if a.headlessFetcher != nil {
		a.headlessFetcher.Close()
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("error shutting down metrics server", zap.Error(err))
		}
	}

	// Best effort: flushing the logger can fail on some platforms.
	_ = a.logger.Sync()
}
