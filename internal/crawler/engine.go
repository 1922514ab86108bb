package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/jobs"
	"github.com/pantrylab/recipe-archiver/internal/metrics"
)

// ContentSink receives the files of one crawl attempt.
type ContentSink interface {
	Put(ctx context.Context, relPath, contentType string, data []byte) error
}

// ContentStore opens a sink for a job's crawl attempt.
type ContentStore interface {
	NewAttempt(job jobs.Job) ContentSink
}

// EngineConfig holds crawl timeouts.
type EngineConfig struct {
	PageTimeout     time.Duration
	ResourceTimeout time.Duration
}

// Engine walks a site starting at a job's seed URL, stores every page it is
// allowed to fetch, and pulls in cross-host page resources. Traversal stays
// on the seed's host and is bounded by the job's crawl depth.
type Engine struct {
	fetcher Fetcher
	robots  RobotsPolicy
	filter  *LinkFilter
	content ContentStore
	limiter *HostLimiter
	cfg     EngineConfig
	logger  *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(
	fetcher Fetcher,
	robots RobotsPolicy,
	filter *LinkFilter,
	content ContentStore,
	limiter *HostLimiter,
	cfg EngineConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		fetcher: fetcher,
		robots:  robots,
		filter:  filter,
		content: content,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

type workItem struct {
	url   string
	depth int
}

// Crawl archives the job's site. A failure to fetch the seed page is
// reported as jobs.ErrSeedFetch so callers can schedule a retry; fetch
// failures on deeper pages and resources are logged and skipped. Storage
// write failures always end the crawl.
func (e *Engine) Crawl(ctx context.Context, job jobs.Job) error {
	seed, err := url.Parse(job.URL)
	if err != nil || seed.Hostname() == "" {
		return fmt.Errorf("parse seed url %q: %w", job.URL, jobs.ErrInvalidURL)
	}
	site := metrics.SanitizeSite(seed.Hostname())
	sink := e.content.NewAttempt(job)

	visited := make(map[string]bool)
	stack := []workItem{{url: job.URL, depth: 0}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl canceled: %w", err)
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Depth before visited: a URL first seen past the bound must stay
		// fetchable if a shallower link reaches it later.
		if item.depth > job.CrawlDepth {
			continue
		}
		if visited[item.url] {
			continue
		}
		visited[item.url] = true
		if !e.robots.Allowed(ctx, item.url) {
			e.logger.Info("robots.txt disallows page",
				zap.String("url", item.url), zap.String("job_id", job.ID))
			metrics.ObserveRobotsDenied(site)
			continue
		}

		page, err := e.fetchPage(ctx, item.url)
		if err != nil {
			if item.depth == 0 {
				metrics.ObservePage(site, "error", 0)
				return fmt.Errorf("fetch seed page %s: %w", item.url, errors.Join(jobs.ErrSeedFetch, err))
			}
			e.logger.Warn("fetch page failed",
				zap.String("url", item.url), zap.String("job_id", job.ID), zap.Error(err))
			metrics.ObservePage(site, "error", 0)
			continue
		}

		if err := sink.Put(ctx, storagePath(item.url), page.ContentType, page.Body); err != nil {
			return fmt.Errorf("store page %s: %w", item.url, err)
		}
		metrics.ObservePage(site, "stored", len(page.Body))

		if !strings.Contains(page.ContentType, "text/html") {
			continue
		}

		links, resources := e.extractLinks(page, seed)
		for _, res := range resources {
			if visited[res] {
				continue
			}
			visited[res] = true
			if err := e.storeExternalResource(ctx, sink, res, job, site); err != nil {
				return fmt.Errorf("store resource %s: %w", res, err)
			}
		}
		// Reverse push so same-host links come off the stack in document order.
		for i := len(links) - 1; i >= 0; i-- {
			if !visited[links[i]] {
				stack = append(stack, workItem{url: links[i], depth: item.depth + 1})
			}
		}
	}
	return nil
}

func (e *Engine) fetchPage(ctx context.Context, rawURL string) (Page, error) {
	if err := e.limiter.Wait(ctx, rawURL); err != nil {
		return Page{}, err
	}
	start := time.Now()
	page, err := e.fetcher.Fetch(ctx, rawURL, e.cfg.PageTimeout)
	metrics.ObserveFetch("page", time.Since(start))
	return page, err
}

// extractLinks pulls hrefs and srcs out of an HTML page, drops tracker URLs,
// and splits the keepers into same-host page links and cross-host resources.
func (e *Engine) extractLinks(page Page, seed *url.URL) (links, resources []string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.logger.Warn("parse html failed", zap.String("url", page.URL), zap.Error(err))
		return nil, nil
	}
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, nil
	}

	doc.Find("a[href], link[href], img[src], script[src]").Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr("href")
		if !ok {
			raw, ok = s.Attr("src")
		}
		if !ok || raw == "" {
			return
		}
		if strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "#") {
			return
		}
		if e.filter.ShouldFilter(raw) {
			return
		}
		resolved, err := base.Parse(e.filter.CleanURL(raw))
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""

		if strings.EqualFold(resolved.Hostname(), seed.Hostname()) {
			// Same-host resources traverse like pages so they land at their
			// natural path under the attempt folder.
			links = append(links, resolved.String())
			return
		}
		if goquery.NodeName(s) != "a" {
			resources = append(resources, resolved.String())
		}
	})
	return links, resources
}

// storeExternalResource fetches a cross-host page asset and stores it under
// the attempt's resources/ tree. Fetch failures are logged and skipped; a
// storage write failure is returned and ends the crawl.
func (e *Engine) storeExternalResource(ctx context.Context, sink ContentSink, rawURL string, job jobs.Job, site string) error {
	if !e.robots.Allowed(ctx, rawURL) {
		metrics.ObserveRobotsDenied(site)
		return nil
	}
	if err := e.limiter.Wait(ctx, rawURL); err != nil {
		e.logger.Warn("resource limiter wait failed", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	start := time.Now()
	page, err := e.fetcher.Fetch(ctx, rawURL, e.cfg.ResourceTimeout)
	metrics.ObserveFetch("resource", time.Since(start))
	if err != nil {
		e.logger.Warn("fetch resource failed",
			zap.String("url", rawURL), zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	resType := resourceType(u.Path)
	relPath := "resources/" + resType + "/" + u.Hostname() + u.Path
	if err := sink.Put(ctx, relPath, page.ContentType, page.Body); err != nil {
		return err
	}
	metrics.ObserveResource(resType)
	return nil
}

func resourceType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico":
		return "image"
	case ".css":
		return "css"
	case ".js":
		return "js"
	default:
		return "unknown"
	}
}

// storagePath maps a page URL to its relative file path inside the attempt
// folder. Directory-like URLs get an index.html.
func storagePath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index.html"
	}
	p := u.Path
	if p == "" || p == "/" {
		return "index.html"
	}
	if strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	return strings.TrimPrefix(p, "/")
}
