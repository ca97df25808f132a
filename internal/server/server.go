package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/FranksOps/securescan/internal/config"
	"github.com/FranksOps/securescan/internal/coordinator"
	"github.com/FranksOps/securescan/internal/progress"
	"github.com/FranksOps/securescan/internal/report"
	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/scraper"
	"github.com/FranksOps/securescan/internal/storage"
	"github.com/FranksOps/securescan/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// urlPattern is the accept filter for scan targets. It is deliberately
// loose for compatibility; scope decisions use the fully parsed URL, never
// this regex.
var urlPattern = regexp.MustCompile(`^(https?://)?([\da-z.-]+)\.([a-z.]{2,6})([/\w .-]*)*/?$`)

// Server is the HTTP front end: scan management REST API plus the
// WebSocket progress stream.
type Server struct {
	cfg     *config.Config
	backend storage.Backend
	bus     *progress.Bus
	pool    *worker.Pool
	logger  *slog.Logger
	router  *gin.Engine
	// launch starts the background scan; tests stub it out.
	launch func(scanID, target string)
}

// New wires the routes.
func New(cfg *config.Config, backend storage.Backend, bus *progress.Bus, pool *worker.Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		bus:     bus,
		pool:    pool,
		logger:  logger,
	}
	s.launch = s.runScan

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/scans", s.createScan)
		api.GET("/scans", s.listScans)
		api.GET("/scans/:id", s.getScan)
		api.GET("/scans/:id/export", s.exportScan)
	}
	r.GET("/ws", s.serveWS)

	s.router = r
	return s
}

// Handler exposes the routes for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type createScanRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) createScan(c *gin.Context) {
	var req createScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	target := strings.TrimSpace(req.URL)
	if !urlPattern.MatchString(target) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid URL"})
		return
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	rec := &storage.Scan{
		ID:              uuid.New().String(),
		URL:             target,
		Status:          string(scan.StatusPending),
		Vulnerabilities: []scan.Finding{},
		CreatedAt:       nowUTC(),
	}
	if err := s.backend.Save(c.Request.Context(), rec); err != nil {
		s.logger.Error("create scan failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not persist scan"})
		return
	}

	// The scan runs in the background; the handler returns immediately.
	go s.launch(rec.ID, target)

	c.JSON(http.StatusCreated, rec)
}

func (s *Server) runScan(scanID, target string) {
	co := coordinator.New(scanID, target, coordinator.Deps{
		Pool:    s.pool,
		Bus:     s.bus,
		Backend: s.backend,
		Logger:  s.logger,
		Fetch: scraper.FetchConfig{
			Timeout:      s.cfg.HTTPTimeout,
			MaxBodyBytes: s.cfg.MaxBodyBytes,
			UserAgent:    s.cfg.UserAgent,
		},
		Crawl: scraper.CrawlConfig{
			MaxDepth: s.cfg.MaxCrawlDepth,
			MaxPages: s.cfg.MaxCrawlPages,
		},
	})

	result := co.Run(context.Background())
	s.logger.Info("scan finished", "scan", scanID, "status", result.Status, "findings", len(result.Findings))
}

func (s *Server) listScans(c *gin.Context) {
	scans, err := s.backend.List(c.Request.Context(), storage.Filter{Limit: 100})
	if err != nil {
		s.logger.Error("list scans failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list scans"})
		return
	}
	if scans == nil {
		scans = []*storage.Scan{}
	}
	c.JSON(http.StatusOK, scans)
}

func (s *Server) getScan(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) exportScan(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.Header("Content-Disposition", `attachment; filename="scan-`+rec.ID+`.json"`)
		c.Header("Content-Type", "application/json")
		if err := report.WriteJSON(c.Writer, rec); err != nil {
			s.logger.Error("export failed", "scan", rec.ID, "err", err)
		}
	case "html":
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := report.WriteHTML(c.Writer, rec); err != nil {
			s.logger.Error("export failed", "scan", rec.ID, "err", err)
		}
	case "pdf", "excel":
		// Rendering of these formats is an external collaborator; the
		// record shape served above is the contract.
		c.JSON(http.StatusNotImplemented, gin.H{"error": "format rendered by the export service"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format"})
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

func (s *Server) lookup(c *gin.Context) (*storage.Scan, bool) {
	rec, err := s.backend.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return nil, false
	}
	if err != nil {
		s.logger.Error("get scan failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load scan"})
		return nil, false
	}
	return rec, true
}
