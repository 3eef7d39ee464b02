// Package server assembles the HTTP surface of the panel service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/expertpanel/internal/profile"
	"github.com/hrygo/expertpanel/plugin/llm"
	"github.com/hrygo/expertpanel/server/eventlog"
	apiv1 "github.com/hrygo/expertpanel/server/router/api/v1"
	"github.com/hrygo/expertpanel/store"
)

type Server struct {
	e *echo.Echo

	Profile *profile.Profile
	Store   *store.Store
	Log     *eventlog.Log
}

// NewServer wires middleware, routes, and services onto a fresh echo
// instance.
func NewServer(ctx context.Context, p *profile.Profile, s *store.Store, log *eventlog.Log) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("panic recovered", "error", err, "stack", string(stack))
			return err
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
	}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"version": p.Version,
			"storage": s.Capability(),
		})
	})

	llmService, err := llm.NewService(p)
	if err != nil {
		return nil, err
	}
	apiv1.NewAPIV1Service(p, s, log, llmService).RegisterRoutes(e)

	return &Server{
		e:       e,
		Profile: p,
		Store:   s,
		Log:     log,
	}, nil
}

// Start begins serving and blocks until the listener fails.
func (s *Server) Start(ctx context.Context) error {
	return s.e.Start(fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port))
}

// Shutdown drains in-flight requests and releases backends.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	if err := s.Log.Close(); err != nil {
		slog.Error("failed to close event log", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("expertpanel stopped")
}
