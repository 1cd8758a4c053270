package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/deepsearch/config"
	"github.com/mohammad-safakhou/deepsearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepsearch/internal/runtime"
	"github.com/mohammad-safakhou/deepsearch/utils/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// New builds the HTTP API around ctrl. /search requires a JWT when
// cfg.JWTSecret is set.
func New(cfg config.ServerConfig, ctrl *core.Controller, reg *prometheus.Registry, log *zap.SugaredLogger) *echo.Echo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		log.Warnw("request failed", "status", code, "method", req.Method, "path", req.URL.Path, "remote", c.RealIP(), "error", err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	sh := &SearchHandler{
		Agent:          ctrl,
		MaxStepsLimit:  cfg.MaxStepsLimit,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
	}
	var mw []echo.MiddlewareFunc
	if cfg.JWTSecret != "" {
		mw = append(mw, runtime.EchoAuthMiddleware([]byte(cfg.JWTSecret)))
	}
	e.GET("/search", sh.Search, mw...)
	return e
}

// Run builds the agent from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	agent, err := runtime.BuildAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = agent.Close(shutdownCtx)
		logger.Sync()
	}()

	log := logger.NewLogger("http")
	e := New(cfg.Server, agent.Controller, agent.Registry, log)

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", cfg.Server.Address, "auth", cfg.Server.JWTSecret != "")
		errCh <- e.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
