package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/pkg/ratelimit"
)

// CrawlConfig provides parameters for the BFS crawler.
type CrawlConfig struct {
	// MaxDepth bounds how far from the seed the crawl walks. Zero means
	// the seed only; negative picks the default of 3.
	MaxDepth int
	// MaxPages bounds how many pages are fetched. Zero crawls nothing.
	MaxPages int
	// Limiter spaces crawl fetches together with the probe traffic.
	Limiter *ratelimit.Limiter
	// OnPage is invoked after each page is appended, with the running page
	// count. Used for crawl progress events.
	OnPage func(pagesFound int, page scan.Page)
}

// DefaultMaxDepth and DefaultMaxPages bound a crawl unless configured.
const (
	DefaultMaxDepth = 3
	DefaultMaxPages = 20
)

// Crawler walks the link graph breadth-first from a seed URL, producing an
// ordered list of pages. The visited set and result list are touched only
// by the crawl loop, so the crawl is strictly sequential.
type Crawler struct {
	cfg     CrawlConfig
	fetcher *Fetcher
	scope   *Scope
	logger  *slog.Logger

	visited map[string]struct{}
}

type crawlJob struct {
	url   string
	depth int
}

// NewCrawler creates a bounded BFS crawler.
func NewCrawler(cfg CrawlConfig, fetcher *Fetcher, scope *Scope, logger *slog.Logger) *Crawler {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		scope:   scope,
		logger:  logger,
		visited: make(map[string]struct{}),
	}
}

// Run crawls from seed and returns the discovered pages in BFS order.
// Per-page fetch errors are logged and skipped; only a seed that cannot be
// fetched at all fails the crawl.
func (c *Crawler) Run(ctx context.Context, seed string) ([]scan.Page, error) {
	canonical, err := Canonicalize(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL %q: %w", seed, err)
	}
	if !c.scope.Allows(canonical) {
		return nil, fmt.Errorf("seed URL %q is out of scope", seed)
	}

	var results []scan.Page
	if c.cfg.MaxPages <= 0 {
		return results, nil
	}

	queue := []crawlJob{{url: canonical, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		j := queue[0]
		queue = queue[1:]

		// Re-check on dequeue: visited may have grown and scope rules may
		// have been tightened since enqueue.
		if _, seen := c.visited[j.url]; seen {
			continue
		}
		if j.depth > c.cfg.MaxDepth || !c.scope.Allows(j.url) {
			continue
		}
		if len(results) >= c.cfg.MaxPages {
			break
		}
		c.visited[j.url] = struct{}{}

		page, err := c.fetchPage(ctx, j)
		if err != nil {
			if j.depth == 0 && len(results) == 0 {
				return nil, fmt.Errorf("crawl seed %s: %w", j.url, err)
			}
			c.logger.Warn("crawl fetch failed, skipping", "url", j.url, "err", err)
			continue
		}

		results = append(results, page)
		c.logger.Debug("crawled", "url", page.URL, "depth", page.Depth, "links", len(page.Links), "forms", len(page.Forms))
		if c.cfg.OnPage != nil {
			c.cfg.OnPage(len(results), page)
		}

		// Stop discovering once the page budget is reached or the depth
		// bound is hit. Jobs still queued when the budget fills are not
		// fetched: the budget check above ends the crawl.
		if len(results) >= c.cfg.MaxPages || j.depth >= c.cfg.MaxDepth {
			continue
		}
		for _, link := range page.Links {
			if _, seen := c.visited[link]; seen {
				continue
			}
			if !c.scope.Allows(link) {
				continue
			}
			queue = append(queue, crawlJob{url: link, depth: j.depth + 1})
		}
	}

	return results, nil
}

// Visited reports how many canonical URLs the crawl marked visited.
func (c *Crawler) Visited() int {
	return len(c.visited)
}

func (c *Crawler) fetchPage(ctx context.Context, j crawlJob) (scan.Page, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return scan.Page{}, err
		}
	}

	resp, err := c.fetcher.Get(ctx, j.url)
	if err != nil {
		return scan.Page{}, err
	}

	pageURL, err := url.Parse(j.url)
	if err != nil {
		return scan.Page{}, err
	}

	parsed := ParsePage(pageURL, resp.Body, resp.Headers.Get("Content-Type"))

	page := scan.Page{
		URL:           j.url,
		Title:         parsed.Title,
		Depth:         j.depth,
		Forms:         parsed.Forms,
		InlineScripts: parsed.InlineScripts,
	}
	for _, link := range parsed.Links {
		if c.scope.Allows(link) {
			page.Links = append(page.Links, link)
		}
	}
	return page, nil
}
