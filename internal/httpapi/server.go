// Package httpapi exposes the response engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/assembler"
	"github.com/fyrsmithlabs/answerd/internal/engine"
	"github.com/fyrsmithlabs/answerd/internal/ingest"
	"github.com/fyrsmithlabs/answerd/internal/session"
)

// Engine is the message-processing surface the server fronts.
type Engine interface {
	ProcessMessage(ctx context.Context, userID, sessionID, query string, opts engine.Options) (*engine.Response, error)
	SessionStats(sessionID string) session.Stats
	ClearSession(sessionID string)
	Health(ctx context.Context) engine.HealthStatus
}

// Ingestor accepts extracted document text for indexing.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	engine   Engine
	ingestor Ingestor
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server. registry may be nil to serve metrics
// from the default registry; ingestor may be nil to disable file uploads.
func NewServer(eng Engine, ingestor Ingestor, registry *prometheus.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		engine:   eng,
		ingestor: ingestor,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes(registry)

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.echo.GET("/healthz", s.handleHealth)

	var metricsHandler http.Handler
	if registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))

	v1 := s.echo.Group("/v1")
	v1.POST("/messages", s.handleMessage)
	v1.POST("/files", s.handleFile)
	v1.GET("/sessions/:id/stats", s.handleSessionStats)
	v1.DELETE("/sessions/:id", s.handleSessionDelete)
}

// MessageRequest is the request body for POST /v1/messages.
type MessageRequest struct {
	UserID         string   `json:"user_id"`
	SessionID      string   `json:"session_id"`
	Message        string   `json:"message"`
	Mode           string   `json:"mode,omitempty"`
	FileFilter     []string `json:"file_filter,omitempty"`
	IncludeHistory *bool    `json:"include_history,omitempty"`
	WorkspaceID    string   `json:"workspace_id,omitempty"`
	Memory         []struct {
		Tag     string `json:"tag"`
		Content string `json:"content"`
	} `json:"memory,omitempty"`
}

// FileRequest is the request body for POST /v1/files. Text carries the
// already-extracted document text.
type FileRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Filename  string `json:"filename"`
	FileType  string `json:"file_type,omitempty"`
	Text      string `json:"text"`
}

// FileResponse is the response body for POST /v1/files.
type FileResponse struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	Cached     bool   `json:"cached"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// handleHealth reports engine health. A degraded vector store is still a
// serving process, so the status code stays 200.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Health(c.Request().Context()))
}

// handleMessage runs one message through the engine.
func (s *Server) handleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid message request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	opts := engine.Options{
		Mode:           session.Mode(req.Mode),
		FileFilter:     req.FileFilter,
		IncludeHistory: req.IncludeHistory,
		WorkspaceID:    req.WorkspaceID,
	}
	for _, m := range req.Memory {
		opts.Memory = append(opts.Memory, assembler.MemoryEntry{Tag: m.Tag, Content: m.Content})
	}

	resp, err := s.engine.ProcessMessage(c.Request().Context(), req.UserID, req.SessionID, req.Message, opts)
	if err != nil {
		return s.engineError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleFile ingests extracted document text.
func (s *Server) handleFile(c echo.Context) error {
	if s.ingestor == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "file ingestion is not enabled"})
	}

	var req FileRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid file request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.ingestor.Ingest(c.Request().Context(), ingest.Request{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Filename:  req.Filename,
		FileType:  req.FileType,
		Text:      req.Text,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyText) || errors.Is(err, ingest.ErrMissingUser) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("file ingestion failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "file ingestion failed"})
	}

	return c.JSON(http.StatusOK, FileResponse{
		FileID:     result.FileRef.FileID,
		Filename:   result.FileRef.Filename,
		ChunkCount: result.FileRef.ChunkCount,
		Cached:     result.Cached,
	})
}

// handleSessionStats returns the session summary.
func (s *Server) handleSessionStats(c echo.Context) error {
	stats := s.engine.SessionStats(c.Param("id"))
	if !stats.Exists {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
	}
	return c.JSON(http.StatusOK, stats)
}

// handleSessionDelete removes a session. Idempotent: deleting an unknown
// session succeeds.
func (s *Server) handleSessionDelete(c echo.Context) error {
	s.engine.ClearSession(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// engineError maps an engine failure to a status code without leaking
// internals.
func (s *Server) engineError(c echo.Context, err error) error {
	kind := engine.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case engine.KindInvalidInput:
		status = http.StatusBadRequest
	case engine.KindIntegrity:
		status = http.StatusUnprocessableEntity
	case engine.KindTransient:
		status = http.StatusBadGateway
	case engine.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	message := "internal error"
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		message = engErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("message processing failed", zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: message, Kind: string(kind)})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
