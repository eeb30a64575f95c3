package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/reviewradar/internal/gitclient"
	"github.com/reviewradar/internal/poller"
	"github.com/reviewradar/internal/projects"
	"github.com/reviewradar/internal/stats"
)

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	port     int
	registry *projects.Registry
	poller   *poller.Poller
	stats    *stats.Calculator
	clients  *gitclient.Pool
}

// NewServer creates a new API server
func NewServer(port int, registry *projects.Registry, p *poller.Poller, calc *stats.Calculator, clients *gitclient.Pool) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:     e,
		port:     port,
		registry: registry,
		poller:   p,
		stats:    calc,
		clients:  clients,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// Webhook receiver
	s.echo.POST("/webhook/gitlab", s.GitLabWebhookHandler)

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	v1.GET("/status", s.getStatus)
	v1.GET("/stats", s.getAllStats)
	v1.GET("/stats/:id", s.getProjectStats)
	v1.GET("/projects/:id/members", s.getProjectMembers)
	v1.POST("/refresh", s.postRefreshAll)
	v1.POST("/refresh/:id", s.postRefreshProject)
}

// Start begins the API server and blocks until an interrupt arrives.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
