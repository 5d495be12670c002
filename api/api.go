// Package api exposes scrape runs and stored articles over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/archscraper/ingest"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxListLimit caps the limit parameter of GET /api/v1/articles.
const MaxListLimit = 200

// Runner runs scrapes. *ingest.Service implements it.
type Runner interface {
	Run(ctx context.Context, opts ingest.RunOptions) (*ingest.Summary, error)
}

// Server is the HTTP API.
type Server struct {
	runner   Runner
	store    store.Gateway
	log      logger.Logger
	gatherer prometheus.Gatherer

	running atomic.Bool
	now     func() time.Time
}

// NewServer creates the API server. A nil gatherer serves the default
// Prometheus registry.
func NewServer(runner Runner, gw store.Gateway, log logger.Logger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		runner:   runner,
		store:    gw,
		log:      log,
		gatherer: gatherer,
		now:      time.Now,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.POST("/scrape", s.HandleScrape)
	api.GET("/articles", s.HandleListArticles)
	api.GET("/articles/lookup", s.HandleLookupArticle)
	api.GET("/sources", s.HandleListSources)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug("HTTP request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}

// ScrapeRequest is the optional body of POST /api/v1/scrape.
type ScrapeRequest struct {
	// Source is a single source name or "all".
	Source  string   `json:"source,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Pages   int      `json:"pages,omitempty" binding:"omitempty,min=1,max=50"`
}

// ScrapeResult reports one source of a run.
type ScrapeResult struct {
	Source        string         `json:"source"`
	ArticlesFound int            `json:"articlesFound"`
	Processed     int            `json:"processed"`
	Inserted      int            `json:"inserted"`
	Updated       int            `json:"updated"`
	Unchanged     int            `json:"unchanged"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	Error         string         `json:"error,omitempty"`
	SampleArticle *ingest.Sample `json:"sampleArticle,omitempty"`
}

// ScrapeResponse is the response of POST /api/v1/scrape.
type ScrapeResponse struct {
	Success   bool           `json:"success"`
	Results   []ScrapeResult `json:"results"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ListArticlesResponse is the response of GET /api/v1/articles.
type ListArticlesResponse struct {
	Articles []store.StoredArticle `json:"articles"`
	Total    int                   `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// ListSourcesResponse is the response of GET /api/v1/sources.
type ListSourcesResponse struct {
	Sources []store.Source `json:"sources"`
	Total   int            `json:"total"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrArticleNotFound), errors.Is(err, store.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, ingest.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		s.log.Error("Request failed", logger.String("path", c.FullPath()), logger.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"running":   s.running.Load(),
		"timestamp": s.now().UTC(),
	})
}

// HandleScrape handles POST /api/v1/scrape. Only one run at a time is
// allowed.
func (s *Server) HandleScrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	opts := ingest.RunOptions{Sources: req.Sources, Pages: req.Pages}
	if req.Source != "" {
		opts.Sources = append(opts.Sources, req.Source)
	}

	if !s.running.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, errorResponse("conflict", "A scrape is already running"))
		return
	}
	defer s.running.Store(false)

	summary, err := s.runner.Run(c.Request.Context(), opts)
	if summary == nil {
		s.handleError(c, err)
		return
	}

	resp := ScrapeResponse{
		Success:   err == nil,
		Results:   make([]ScrapeResult, 0, len(summary.Sources)),
		Timestamp: s.now().UTC(),
	}
	if err != nil {
		s.log.Error("Scrape run aborted", logger.Error(err))
		resp.Error = err.Error()
	}
	for _, src := range summary.Sources {
		result := ScrapeResult{
			Source:        src.Source,
			ArticlesFound: src.Found,
			Processed:     src.Processed(),
			Inserted:      src.Inserted,
			Updated:       src.Updated,
			Unchanged:     src.Unchanged,
			Skipped:       src.Skipped,
			Failed:        src.Failed,
			SampleArticle: src.Sample,
		}
		if src.Err != nil {
			result.Error = src.Err.Error()
		}
		resp.Results = append(resp.Results, result)
	}

	c.JSON(http.StatusOK, resp)
}

// HandleListArticles handles GET /api/v1/articles.
func (s *Server) HandleListArticles(c *gin.Context) {
	limit, err := queryInt(c, "limit", store.DefaultListLimit)
	if err != nil || limit < 1 || limit > MaxListLimit {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "limit must be between 1 and 200"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "offset must be a non-negative integer"))
		return
	}

	articles, err := s.store.ListArticles(c.Request.Context(), store.ArticleFilter{
		Source: c.Query("source"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListArticlesResponse{
		Articles: articles,
		Total:    len(articles),
		Limit:    limit,
		Offset:   offset,
	})
}

// HandleLookupArticle handles GET /api/v1/articles/lookup?url=.
func (s *Server) HandleLookupArticle(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "url is required"))
		return
	}

	a, err := s.store.GetArticleByURL(c.Request.Context(), url)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

// HandleListSources handles GET /api/v1/sources.
func (s *Server) HandleListSources(c *gin.Context) {
	sources, err := s.store.ListSources(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListSourcesResponse{
		Sources: sources,
		Total:   len(sources),
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
