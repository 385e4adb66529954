package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"studylog/internal/database"
	"studylog/internal/pipeline"
)

// Server is the thin invocation surface over the pipeline. It supplies the
// member and study records and relays results; HTTP status mapping lives
// here, never inside the pipeline.
type Server struct {
	echo *echo.Echo
	addr string
}

func New(
	addr string,
	db *database.Database,
	svc *pipeline.Service,
	log *slog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.InfoContext(c.Request().Context(), "Request is handled",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latencyMs", v.Latency.Milliseconds())

			return nil
		},
	}))

	h := &handler{db: db, svc: svc, log: log}

	e.GET("/healthz", h.health)
	e.POST("/api/studies/:id/check", h.checkStudy)
	e.POST("/api/runs/:id/resume", h.resumeRun)

	return &Server{echo: e, addr: addr}
}

func (s *Server) Start() error {
	err := s.echo.Start(s.addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
