// Package orchestrator drives a batch run: admission through the
// concurrency limiter, fetch-once-process-many per work unit, checkpoint
// recording, and completion events.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyfong/aiparserpipeline/internal/cachekey"
	"github.com/tyfong/aiparserpipeline/internal/checkpoint"
	"github.com/tyfong/aiparserpipeline/internal/fetchcache"
	"github.com/tyfong/aiparserpipeline/internal/limiter"
	"github.com/tyfong/aiparserpipeline/internal/metrics"
	"github.com/tyfong/aiparserpipeline/internal/pipeline"
	"github.com/tyfong/aiparserpipeline/internal/prompt"
)

// IDGenerator mints the per-unit task identifiers that scope cache keys.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls Orchestrator behavior.
type Config struct {
	Topic         string
	FlushInterval time.Duration
}

// Orchestrator executes work units concurrently, bounded by the limiter.
// Each unit fetches its URLs once, runs every prompt against the cached
// content, merges the responses, and records the result in the
// checkpoint. A unit that fails is never checkpointed, so the next run
// retries it.
type Orchestrator struct {
	fetcher    pipeline.Fetcher
	processor  pipeline.Processor
	publisher  pipeline.Publisher
	clock      pipeline.Clock
	ids        IDGenerator
	cache      *fetchcache.Cache
	checkpoint *checkpoint.Store
	limiter    *limiter.Limiter
	prompts    []string
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(
	fetcher pipeline.Fetcher,
	processor pipeline.Processor,
	publisher pipeline.Publisher,
	clock pipeline.Clock,
	ids IDGenerator,
	cache *fetchcache.Cache,
	ckpt *checkpoint.Store,
	lim *limiter.Limiter,
	prompts []string,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("fetch cache is required")
	}
	if ckpt == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if lim == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("at least one prompt is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher:    fetcher,
		processor:  processor,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cache:      cache,
		checkpoint: ckpt,
		limiter:    lim,
		prompts:    prompts,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run executes every unit not already recorded in the checkpoint and
// blocks until all admitted units finish. Cache entries are removed as
// each unit completes, and a final checkpoint flush happens before
// return. Run is not safe to call concurrently on one Orchestrator.
func (o *Orchestrator) Run(ctx context.Context, units []pipeline.WorkUnit) (pipeline.RunSummary, error) {
	start := o.clock.Now()
	o.checkpoint.Load()

	stopFlush := o.startFlushLoop()
	defer stopFlush()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary pipeline.RunSummary
	)

	for _, unit := range units {
		if o.checkpoint.Completed(unit.Project) {
			o.logger.Info("unit already completed, skipping",
				zap.String("project", unit.Project))
			metrics.ObserveUnit(string(pipeline.UnitStatusSkipped))
			summary.Skipped++
			continue
		}

		if err := o.limiter.Acquire(ctx); err != nil {
			o.logger.Warn("admission interrupted", zap.Error(err))
			break
		}

		wg.Add(1)
		go func(unit pipeline.WorkUnit) {
			defer wg.Done()
			defer o.limiter.Release()
			metrics.IncActiveUnits()
			defer metrics.DecActiveUnits()

			result, err := o.runUnit(ctx, unit)
			if err != nil {
				o.logger.Error("unit failed",
					zap.String("project", unit.Project), zap.Error(err))
				metrics.ObserveUnit(string(pipeline.UnitStatusFailed))
				mu.Lock()
				summary.Failed++
				summary.FailedUnits = append(summary.FailedUnits, unit.Project)
				mu.Unlock()
				o.publishEvent(ctx, unit.Project, pipeline.UnitStatusFailed, result)
				return
			}

			o.checkpoint.Record(unit.Project, result)
			if ferr := o.checkpoint.Flush(); ferr != nil {
				o.logger.Warn("checkpoint flush failed",
					zap.String("project", unit.Project), zap.Error(ferr))
			}
			o.logger.Info("unit completed",
				zap.String("project", unit.Project),
				zap.Int("rows", len(result.Rows)),
				zap.Int("failed_urls", len(result.FailedURLs)))
			metrics.ObserveUnit(string(pipeline.UnitStatusCompleted))
			mu.Lock()
			summary.Completed++
			mu.Unlock()
			o.publishEvent(ctx, unit.Project, pipeline.UnitStatusCompleted, result)
		}(unit)
	}

	wg.Wait()

	summary.Duration = o.clock.Now().Sub(start)

	// A run whose completed units cannot be persisted must not report
	// success: the next invocation would repeat them all.
	if err := o.checkpoint.Flush(); err != nil {
		o.logger.Error("final checkpoint flush failed", zap.Error(err))
		return summary, fmt.Errorf("persist checkpoint: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// runUnit fetches each URL once, runs every prompt over the cached
// content, and merges the responses per URL. The unit's cache entries
// are released before return regardless of outcome.
func (o *Orchestrator) runUnit(ctx context.Context, unit pipeline.WorkUnit) (pipeline.UnitResult, error) {
	taskID, err := o.ids.NewID()
	if err != nil {
		return pipeline.UnitResult{}, fmt.Errorf("mint task id: %w", err)
	}
	composer, err := cachekey.New(taskID)
	if err != nil {
		return pipeline.UnitResult{}, fmt.Errorf("build key composer: %w", err)
	}

	var keys []cachekey.Key
	defer func() {
		for _, key := range keys {
			if rerr := o.cache.Release(key); rerr != nil {
				o.logger.Warn("cache release failed",
					zap.String("project", unit.Project), zap.Error(rerr))
			}
		}
	}()

	result := pipeline.UnitResult{Project: unit.Project}
	for _, url := range unit.URLs {
		if ctx.Err() != nil {
			return result, fmt.Errorf("unit interrupted: %w", ctx.Err())
		}

		key, err := composer.Compose(url, unit.Project)
		if err != nil {
			result.FailedURLs = append(result.FailedURLs, url)
			o.logger.Warn("cache key composition failed",
				zap.String("project", unit.Project), zap.String("url", url), zap.Error(err))
			continue
		}
		keys = append(keys, key)

		content, err := o.cache.GetOrFetch(ctx, key, func(fetchCtx context.Context) ([]byte, error) {
			page, ferr := o.fetcher.Fetch(fetchCtx, url)
			if ferr != nil {
				return nil, ferr
			}
			return []byte(page.FullText()), nil
		})
		if err != nil {
			result.FailedURLs = append(result.FailedURLs, url)
			o.logger.Warn("fetch failed",
				zap.String("project", unit.Project), zap.String("url", url), zap.Error(err))
			continue
		}

		row := o.processURL(ctx, unit.Project, url, string(content))
		result.Rows = append(result.Rows, row)
	}

	if len(unit.URLs) > 0 && len(result.Rows) == 0 {
		return result, fmt.Errorf("every url failed for project %q", unit.Project)
	}

	result.CompletedAt = o.clock.Now()
	return result, nil
}

// processURL runs every prompt against one page's content. A failing
// prompt is logged and skipped; its fields are simply absent from the
// merged row.
func (o *Orchestrator) processURL(ctx context.Context, project, url, content string) pipeline.ResultRow {
	responses := make([]map[string]string, 0, len(o.prompts))
	for i, template := range o.prompts {
		rendered := prompt.Substitute(template, project)
		fields, err := o.processor.Process(ctx, content, rendered)
		if err != nil {
			o.logger.Warn("prompt processing failed",
				zap.String("project", project),
				zap.String("url", url),
				zap.Int("prompt", i+1),
				zap.Error(err))
			continue
		}
		responses = append(responses, fields)
	}
	return pipeline.MergeResponses(url, responses)
}

func (o *Orchestrator) publishEvent(ctx context.Context, project string, status pipeline.UnitStatus, result pipeline.UnitResult) {
	if o.cfg.Topic == "" || o.publisher == nil {
		return
	}
	event := pipeline.CompletionEvent{
		Project:    project,
		Status:     status,
		Rows:       len(result.Rows),
		FailedURLs: result.FailedURLs,
		Timestamp:  o.clock.Now(),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
		o.logger.Warn("completion event publish failed",
			zap.String("project", project), zap.Error(err))
		return
	}
	o.logger.Debug("completion event published",
		zap.String("project", project), zap.String("status", string(status)))
}

// startFlushLoop flushes the checkpoint on a timer so a crash loses at
// most one interval of recorded units. Returns a stop function.
func (o *Orchestrator) startFlushLoop() func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(o.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := o.checkpoint.Flush(); err != nil {
					o.logger.Warn("periodic checkpoint flush failed", zap.Error(err))
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
