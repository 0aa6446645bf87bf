// Package server exposes the drive service as a JSON HTTP API, streams
// change events to clients, and serves signed blobs of local object stores.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"minix/internal/drive"
)

const (
	objectsPrefix     = "/objects/"
	heartbeatInterval = 25 * time.Second
	maxUploadMemory   = 32 << 20
)

// Subscriber opens change streams for the events endpoint.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (drive.Subscription, error)
}

// Options configures a Server. Feed and Objects are optional: without a
// feed the events endpoint answers 503, without objects /objects is not
// served.
type Options struct {
	Service  *drive.DriveService
	Objects  drive.ObjectStore
	Feed     Subscriber
	Verifier TokenVerifier
	Logger   drive.Logger

	// Heartbeat overrides the interval of keep-alive comments on event
	// streams.
	Heartbeat time.Duration
}

// Server is the HTTP API over one DriveService.
type Server struct {
	echo      *echo.Echo
	svc       *drive.DriveService
	objects   drive.ObjectStore
	feed      Subscriber
	logger    drive.Logger
	heartbeat time.Duration

	// closing ends open event streams on shutdown.
	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("server requires a drive service")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("server requires a token verifier")
	}
	s := &Server{
		echo:      echo.New(),
		svc:       opts.Service,
		objects:   opts.Objects,
		feed:      opts.Feed,
		logger:    opts.Logger,
		heartbeat: opts.Heartbeat,
		closing:   make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = drive.NewNopLogger()
	}
	if s.heartbeat <= 0 {
		s.heartbeat = heartbeatInterval
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request", "method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency.String())
			return nil
		},
	}))

	s.routes(opts.Verifier)
	return s, nil
}

func (s *Server) routes(verifier TokenVerifier) {
	api := s.echo.Group("/api", authMiddleware(verifier))

	api.GET("/drive", s.handleDrive)

	api.GET("/folders", s.handleListFolders)
	api.POST("/folders", s.handleCreateFolder)
	api.DELETE("/folders", s.handleDeleteFolders)
	api.PATCH("/folders/:id", s.handleRenameFolder)
	api.GET("/folders/:id/path", s.handleFolderPath)
	api.GET("/folders/:id/download", s.handleDownloadFolder)

	api.POST("/files", s.handleUploadFiles)
	api.DELETE("/files", s.handleDeleteFiles)
	api.POST("/files/download", s.handleFileURL)

	api.GET("/dashboard", s.handleDashboard)
	api.GET("/recent", s.handleRecent)

	api.GET("/pastes", s.handleListPastes)
	api.POST("/pastes", s.handleCreatePaste)
	api.GET("/pastes/:id", s.handleGetPaste)
	api.PUT("/pastes/:id", s.handleUpdatePaste)
	api.DELETE("/pastes/:id", s.handleDeletePaste)
	api.POST("/pastes/:id/signed-url", s.handleSharePaste)

	api.GET("/events", s.handleEvents)

	if s.objects != nil {
		s.echo.GET(objectsPrefix+"*", s.handleObject)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("server shutting down")
	s.closeOnce.Do(func() { close(s.closing) })
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
