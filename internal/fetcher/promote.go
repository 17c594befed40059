package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tyfong/aiparserpipeline/internal/metrics"
	"github.com/tyfong/aiparserpipeline/internal/pipeline"
	"github.com/tyfong/aiparserpipeline/internal/ratelimit"
)

// Detector decides whether a headless fetch is warranted.
type Detector interface {
	ShouldPromote(page pipeline.Page) bool
}

// Promoting fetches with the cheap probe first and escalates to the
// headless browser when the probe result looks JS-rendered or the probe
// fails outright. It implements pipeline.Fetcher.
type Promoting struct {
	probe    pipeline.Fetcher
	headless pipeline.Fetcher
	detector Detector
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

// NewPromoting builds a Promoting fetcher. headless and detector may be
// nil, in which case every fetch stays on the probe path. limiter may be
// nil to disable per-domain politeness.
func NewPromoting(
	probe pipeline.Fetcher,
	headless pipeline.Fetcher,
	detector Detector,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) (*Promoting, error) {
	if probe == nil {
		return nil, fmt.Errorf("probe fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{
		probe:    probe,
		headless: headless,
		detector: detector,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Fetch retrieves url, promoting probe results to a headless fetch when
// the detector asks for it.
func (p *Promoting) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, url); err != nil {
			return pipeline.Page{}, err
		}
	}

	start := time.Now()
	page, err := p.probe.Fetch(ctx, url)
	if err != nil {
		if p.headless == nil {
			metrics.ObserveFetch(url, "probe", "error", time.Since(start))
			return pipeline.Page{}, err
		}
		p.logger.Warn("probe fetch failed, trying headless",
			zap.String("url", url), zap.Error(err))
		promoted, herr := p.fetchHeadless(ctx, url)
		if herr != nil {
			// Keep the probe error visible; it names the real cause.
			return pipeline.Page{}, fmt.Errorf("probe fetch: %w (headless fallback: %v)", err, herr)
		}
		return promoted, nil
	}
	metrics.ObserveFetch(url, "probe", "ok", page.Duration)

	if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(page) {
		return page, nil
	}

	promoted, err := p.fetchHeadless(ctx, url)
	if err != nil {
		// Probe content is still usable when promotion fails.
		p.logger.Warn("headless promotion failed",
			zap.String("url", url), zap.Error(err))
		return page, nil
	}
	p.logger.Debug("headless promotion applied", zap.String("url", url))
	return promoted, nil
}

func (p *Promoting) fetchHeadless(ctx context.Context, url string) (pipeline.Page, error) {
	start := time.Now()
	page, err := p.headless.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch(url, "headless", "error", time.Since(start))
		return pipeline.Page{}, err
	}
	metrics.ObserveFetch(url, "headless", "ok", page.Duration)
	return page, nil
}
