// Package collyfetcher implements the plain-HTTP probe fetcher using
// gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements pipeline.Fetcher using the Colly collector. URLs are
// operator-supplied, so robots probing is not part of this path.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and extracts the page title and body
// text from the returned document.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		page     pipeline.Page
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(resp *colly.Response) {
		page = pipeline.Page{
			URL:        url,
			RawHTML:    resp.Body,
			StatusCode: resp.StatusCode,
		}
	})
	collector.OnError(func(resp *colly.Response, err error) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fetchErr = fmt.Errorf("probe fetch %s (status %d): %w", url, status, err)
	})

	if err := ctx.Err(); err != nil {
		return pipeline.Page{}, fmt.Errorf("probe fetch canceled: %w", err)
	}
	if err := collector.Visit(url); err != nil {
		return pipeline.Page{}, fmt.Errorf("probe visit %s: %w", url, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return pipeline.Page{}, fetchErr
	}

	title, text, err := extractText(page.RawHTML)
	if err != nil {
		return pipeline.Page{}, fmt.Errorf("extract text %s: %w", url, err)
	}
	page.Title = title
	page.Text = text
	page.Duration = time.Since(start)
	return page, nil
}

// extractText pulls the title and visible body text out of an HTML
// document.
func extractText(html []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	body := doc.Find("body").First()
	body.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(body.Text())
	return title, text, nil
}
