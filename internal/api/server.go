package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/goldedit/internal/config"
	"github.com/goldedit/internal/model"
	"github.com/goldedit/internal/session"
	"github.com/goldedit/internal/storage"
)

// Server represents the API server
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	store   *storage.Store
	session *session.Session
	schema  *model.Schema
}

// NewServer creates a new API server
func NewServer(cfg *config.Config) (*Server, error) {
	schema := model.DefaultSchema()
	if cfg.SlotsSchema != "" {
		var err error
		if schema, err = model.LoadSchema(cfg.SlotsSchema); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		cfg:  cfg,
		store: &storage.Store{
			DataRoot:     cfg.DataRoot,
			BackupOnSave: cfg.BackupOnSave,
			BackupDir:    cfg.BackupDir,
			AuditLog:     cfg.AuditLog,
			ReviewedDir:  cfg.ReviewedOutputDir,
			SkippedDir:   cfg.SkippedOutputDir,
		},
		// One edit session for the server's lifetime; it is the only
		// holder of unsaved state.
		session: session.New(),
		schema:  schema,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	files := s.echo.Group("/api/files")
	files.GET("", s.listFiles)
	files.GET("/:id/stats", s.getFileStats)
	files.GET("/:id/entries", s.listEntries)
	files.GET("/:id/search", s.searchEntries)
	files.GET("/:id/entries/:index", s.getEntry)
	files.PATCH("/:id/entries/:index", s.patchEntry)
	files.POST("/:id/entries/:index/undo", s.undoEntry)
	files.POST("/:id/entries/:index/reviewed", s.toggleReviewed)
	files.POST("/:id/save", s.saveFile)
	files.POST("/:id/skip", s.skipFile)
	files.POST("/:id/finish", s.finishFile)

	s.echo.GET("/api/export/report", s.exportReport)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins the API server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
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

// ErrorResponse is the JSON body for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// httpError maps the core error kinds onto status codes: unknown files and
// out-of-range indexes are 404, bad field values 400, corrupt data files
// 422, and anything touching the disk that fails is a 500.
func httpError(c echo.Context, err error) error {
	var validationErr *model.ValidationError
	var parseErr *storage.ParseError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &parseErr):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
