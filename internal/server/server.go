// Package server exposes the webhook, the admin API, health and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"floorbot/internal/channel"
	"floorbot/internal/domain"
	"floorbot/internal/metrics"
)

const (
	shutdownTimeout = 10 * time.Second
	pingTimeout     = 3 * time.Second
)

type Config struct {
	Addr        string
	WebhookPath string
	Webhook     *channel.Webhook
	Store       domain.AdminStore
	Admin       AdminAuth
	Metrics     *metrics.Metrics
	MetricsPath string // empty disables the endpoint
	Logger      *slog.Logger
	Version     string
}

type Server struct {
	echo    *echo.Echo
	addr    string
	store   domain.AdminStore
	logger  *slog.Logger
	version string
}

func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.Webhook == nil {
		return nil, errors.New("server: webhook is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook/whatsapp"
	}

	s := &Server{
		echo:    echo.New(),
		addr:    cfg.Addr,
		store:   cfg.Store,
		logger:  cfg.Logger,
		version: cfg.Version,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(cfg.Logger))

	e.GET(cfg.WebhookPath, cfg.Webhook.Verify)
	e.POST(cfg.WebhookPath, cfg.Webhook.Receive)
	e.GET("/healthz", s.health)

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(cfg.Metrics.Handler()))
	}

	if cfg.Admin.Enabled {
		admin := e.Group("/api/admin", basicAuth(cfg.Admin))
		admin.GET("/quotes", s.listQuotes)
		admin.GET("/quotes/:id", s.getQuote)
		admin.PATCH("/quotes/:id", s.updateQuoteStatus)
		admin.GET("/conversations", s.listConversations)
		admin.GET("/conversations/:phone", s.getConversation)
		admin.GET("/conversations/:phone/messages", s.listMessages)
		admin.GET("/stats", s.stats)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.echo.Start(s.addr) }()
	s.logger.Info("http server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "err", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("http request", append(attrs, "err", v.Error)...)
				return nil
			}
			logger.Debug("http request", attrs...)
			return nil
		},
	})
}
