package server

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"supportwatch/internal/config"
	"supportwatch/internal/handlers"
)

// Services are the collaborators behind the HTTP routes. Nil optional
// services make their routes answer 503.
type Services struct {
	DB            *sqlx.DB
	Gate          handlers.MessageHandler
	Analyzer      handlers.AnalysisRunner
	Knowledge     handlers.KnowledgeSearcher
	Issues        handlers.IssueService
	IssueTags     handlers.IssueTagLister
	IssueList     handlers.IssueLister
	Conversations handlers.ConversationSettings
	Jobs          handlers.JobRunner       // optional
	Analytics     handlers.SummaryProvider // optional
}

// Server represents the application server
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	services Services
	logger   zerolog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, services Services, logger zerolog.Logger) *Server {
	return &Server{
		config:   cfg,
		services: services,
		logger:   logger,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			event := s.logger.Info()
			if res.Status >= 500 {
				event = s.logger.Warn()
			}
			event.
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()
	s.echo.HideBanner = true

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints stay at root level for probes
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.services.DB))

	api := s.echo.Group("/api")
	api.GET("/", handlers.RootHandler(s.config.Version))

	api.POST("/webhooks/messages", handlers.InboundMessageHandler(s.services.Gate, s.logger))
	api.POST("/analysis/run", handlers.RunAnalysisHandler(s.services.Analyzer, s.logger))

	api.GET("/issues", handlers.ListIssuesHandler(s.services.Issues, s.services.IssueList, s.logger))
	api.GET("/issues/:id", handlers.GetIssueHandler(s.services.Issues, s.services.IssueTags, s.logger))
	api.PATCH("/issues/:id/status", handlers.UpdateIssueStatusHandler(s.services.Issues, s.logger))

	api.PATCH("/conversations/:id/auto-reply", handlers.UpdateConversationAutoReplyHandler(s.services.Conversations, s.logger))

	api.POST("/knowledge/search", handlers.KnowledgeSearchHandler(s.services.Knowledge, s.logger))
	api.POST("/knowledge/embeddings/jobs", handlers.TriggerEmbeddingJobHandler(s.services.Jobs, s.logger))
	api.GET("/knowledge/embeddings/jobs/:name", handlers.EmbeddingJobStatusHandler(s.services.Jobs))

	api.GET("/analytics", handlers.AnalyticsHandler(s.services.Analytics, s.logger))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
