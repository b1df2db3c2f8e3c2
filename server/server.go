// Package server wires the HTTP surface over the session engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/voxmate/voxmate/internal/profile"
	"github.com/voxmate/voxmate/plugin/llm"
	vmmiddleware "github.com/voxmate/voxmate/server/middleware"
	apiv1 "github.com/voxmate/voxmate/server/router/api/v1"
	"github.com/voxmate/voxmate/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

func NewServer(profile *profile.Profile, store *store.Store, generator llm.Generator) *Server {
	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true

	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	// Turn submissions can each cost a generation call, so over-eager
	// clients are throttled before they reach the provider.
	echoServer.Use(vmmiddleware.NewRateLimiter(10, 20).Middleware())

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiV1Service := apiv1.NewAPIV1Service(profile, store, generator)
	apiV1Service.RegisterRoutes(echoServer)

	return &Server{
		Profile:    profile,
		Store:      store,
		echoServer: echoServer,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", slog.String("addr", addr), slog.String("mode", s.Profile.Mode))
	if err := s.echoServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start server")
	}
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server gracefully", slog.Any("error", err))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.Any("error", err))
	}
	slog.Info("server stopped")
}
