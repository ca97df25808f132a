package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/FranksOps/securescan/internal/metrics"
	"github.com/FranksOps/securescan/internal/progress"
	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/scraper"
	"github.com/FranksOps/securescan/internal/storage"
	"github.com/FranksOps/securescan/internal/worker"
	"github.com/google/uuid"
)

// Deps are the collaborators one scan needs.
type Deps struct {
	Pool    *worker.Pool
	Bus     *progress.Bus
	Backend storage.Backend
	Logger  *slog.Logger
	// Fetch configures the crawl fetcher; the coordinator adds the
	// same-scope redirect policy itself.
	Fetch scraper.FetchConfig
	Crawl scraper.CrawlConfig
}

// Coordinator owns one scan's lifecycle: it drives crawl then scan, is the
// single writer of the scan state, aggregates worker results and emits
// progress events. Run is the owning goroutine; nothing else touches the
// state.
type Coordinator struct {
	scanID string
	seed   string
	deps   Deps
	logger *slog.Logger

	// state, owned by Run
	status          scan.Status
	startTime       time.Time
	pagesFound      int
	totalPages      int
	pagesScanned    int
	formsFound      int
	endpointsTested int
	findings        []scan.Finding
	crawlStats      scan.CrawlStats
}

// New prepares a coordinator for one scan. scanID is assigned by the caller
// and stable for the scan's lifetime.
func New(scanID, seed string, deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		scanID: scanID,
		seed:   seed,
		deps:   deps,
		logger: logger.With("scan", scanID),
		status: scan.StatusPending,
	}
}

// Run executes the scan to completion and returns the final result. A crawl
// failure fails the scan; per-page scan failures do not.
func (c *Coordinator) Run(ctx context.Context) *scan.Result {
	c.startTime = time.Now()

	pages, err := c.crawl(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	c.status = scan.StatusScanning
	c.totalPages = len(pages)
	c.persist(ctx)
	c.emit()

	if c.totalPages > 0 {
		c.scanPages(ctx, pages)
	}

	c.status = scan.StatusCompleted
	c.persist(ctx)
	c.emit()
	metrics.RecordScan(string(scan.StatusCompleted), time.Since(c.startTime))
	c.logger.Info("scan completed",
		"pages", c.pagesScanned,
		"findings", len(c.findings),
		"endpoints", c.endpointsTested,
	)
	c.deps.Bus.Forget(c.scanID)

	return c.result()
}

// crawl runs the bounded BFS and gathers crawl statistics.
func (c *Coordinator) crawl(ctx context.Context) ([]scan.Page, error) {
	seedURL, err := url.Parse(c.seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	scope := scraper.NewScope(seedURL, nil, nil)

	fetchCfg := c.deps.Fetch
	fetchCfg.SameScope = scope.AllowsURL
	fetcher, err := scraper.NewFetcher(fetchCfg)
	if err != nil {
		return nil, fmt.Errorf("create crawl fetcher: %w", err)
	}

	c.status = scan.StatusCrawling
	c.persist(ctx)
	c.emit()

	crawlCfg := c.deps.Crawl
	crawlCfg.Limiter = c.deps.Pool.Limiter()
	crawlCfg.OnPage = func(pagesFound int, page scan.Page) {
		c.pagesFound = pagesFound
		metrics.PagesCrawled.Inc()
		c.emit()
	}

	crawler := scraper.NewCrawler(crawlCfg, fetcher, scope, c.logger)
	pages, err := crawler.Run(ctx, c.seed)
	if err != nil {
		return nil, err
	}

	c.crawlStats = scan.CrawlStats{
		TotalPages:  len(pages),
		VisitedURLs: crawler.Visited(),
	}
	for _, p := range pages {
		c.crawlStats.TotalForms += len(p.Forms)
		c.crawlStats.TotalLinks += len(p.Links)
		if p.Depth > c.crawlStats.MaxDepthReached {
			c.crawlStats.MaxDepthReached = p.Depth
		}
	}
	return pages, nil
}

// scanPages enqueues one task per page and aggregates results as they
// settle. Aggregation happens only here, so counters stay monotonic and no
// update is lost.
func (c *Coordinator) scanPages(ctx context.Context, pages []scan.Page) {
	settled := make(chan worker.Result)
	for i, page := range pages {
		future := c.deps.Pool.Submit(worker.Task{
			ID:       worker.TaskID(c.scanID, i),
			ScanID:   c.scanID,
			Kind:     worker.KindScan,
			Page:     page,
			Priority: 1,
		})
		go func(f <-chan worker.Result) {
			settled <- <-f
		}(future)
	}

	for i := 0; i < len(pages); i++ {
		res := <-settled
		c.pageDone(ctx, res)
	}
}

// pageDone aggregates one worker result. A failed task counts as a page
// that produced zero findings.
func (c *Coordinator) pageDone(ctx context.Context, res worker.Result) {
	c.pagesScanned++
	if c.pagesScanned > c.totalPages {
		// Impossible counter state; keep the counter sane and make noise.
		c.logger.Error("invariant violation: pages scanned exceeds total",
			"scanned", c.pagesScanned, "total", c.totalPages)
		c.pagesScanned = c.totalPages
	}
	if res.Err != nil {
		c.logger.Warn("page scan failed", "task", res.TaskID, "url", res.PageURL, "err", res.Err)
	} else {
		c.findings = append(c.findings, res.Findings...)
		c.formsFound += res.FormsFound
		c.endpointsTested += res.EndpointsTested
		for _, f := range res.Findings {
			metrics.RecordFinding(string(f.Category), string(f.Severity))
		}
	}
	c.persist(ctx)
	c.emit()
}

// fail transitions the scan to the terminal failed state. Only the crawl
// phase can get here.
func (c *Coordinator) fail(ctx context.Context, err error) *scan.Result {
	c.logger.Error("scan failed", "err", err)
	c.status = scan.StatusFailed
	c.findings = append(c.findings, scan.Finding{
		ID:          uuid.New().String(),
		Name:        "Scan Failed",
		Category:    scan.CategoryInfoDisclosure,
		Severity:    scan.SeverityLow,
		Description: "Unable to scan the target",
		Location:    c.seed,
		Impact:      fmt.Sprintf("The target could not be crawled: %v", err),
	})
	c.persist(ctx)
	c.deps.Bus.PublishError(c.scanID, err.Error())
	metrics.RecordScan(string(scan.StatusFailed), time.Since(c.startTime))
	return c.result()
}

// progressValue maps the scan state onto the 0-100 progress bar: the crawl
// phase owns the first 30%, scanning the rest.
func (c *Coordinator) progressValue() int {
	switch c.status {
	case scan.StatusCrawling:
		// The crawl phase is pinned at 30% of the bar as soon as the first
		// page lands.
		if c.pagesFound == 0 {
			return 0
		}
		return 30
	case scan.StatusScanning:
		if c.totalPages == 0 {
			return 30
		}
		// 100 is reserved for the completed status: the last page settles
		// while the status still reads scanning, so cap this phase at 99.
		return 30 + min(69, int(math.Round(float64(c.pagesScanned)/float64(c.totalPages)*70)))
	case scan.StatusCompleted:
		return 100
	default:
		return 0
	}
}

func (c *Coordinator) etaSeconds() int {
	if c.pagesScanned == 0 || c.totalPages == 0 {
		return 0
	}
	elapsed := time.Since(c.startTime).Seconds()
	perPage := elapsed / float64(c.pagesScanned)
	return int(perPage * float64(c.totalPages-c.pagesScanned))
}

func (c *Coordinator) stage() string {
	switch c.status {
	case scan.StatusCrawling:
		return "Crawling site structure"
	case scan.StatusScanning:
		return "Probing pages for vulnerabilities"
	case scan.StatusCompleted:
		return "Completed"
	case scan.StatusFailed:
		return "Failed"
	default:
		return "Pending"
	}
}

func (c *Coordinator) emit() {
	ev := progress.Event{
		ScanID:                 c.scanID,
		Status:                 string(c.status),
		Progress:               c.progressValue(),
		PagesScanned:           c.pagesScanned,
		TotalPages:             c.totalPages,
		VulnerabilitiesFound:   len(c.findings),
		FormsFound:             c.formsFound,
		EndpointsTested:        c.endpointsTested,
		EstimatedTimeRemaining: c.etaSeconds(),
		StartTime:              c.startTime,
		CurrentStage:           c.stage(),
	}
	if c.status == scan.StatusCompleted {
		ev.Vulnerabilities = c.findings
	}
	c.deps.Bus.Publish(ev)
}

func (c *Coordinator) persist(ctx context.Context) {
	if c.deps.Backend == nil {
		return
	}
	rec := &storage.Scan{
		ID:              c.scanID,
		URL:             c.seed,
		Status:          string(c.status),
		Vulnerabilities: c.findings,
		PagesScanned:    c.pagesScanned,
		FormsFound:      c.formsFound,
		EndpointsTested: c.endpointsTested,
		CrawlStats:      c.crawlStats,
		CreatedAt:       c.startTime,
	}
	if c.status == scan.StatusCompleted || c.status == scan.StatusFailed {
		now := time.Now()
		rec.CompletedAt = &now
	}
	if err := c.deps.Backend.Save(ctx, rec); err != nil {
		c.logger.Error("persist scan record failed", "err", err)
	}
}

func (c *Coordinator) result() *scan.Result {
	return &scan.Result{
		ScanID:          c.scanID,
		Status:          c.status,
		Findings:        c.findings,
		PagesScanned:    c.pagesScanned,
		TotalPages:      c.totalPages,
		FormsFound:      c.formsFound,
		EndpointsTested: c.endpointsTested,
		CrawlStats:      c.crawlStats,
		StartTime:       c.startTime,
		EndTime:         time.Now(),
	}
}
