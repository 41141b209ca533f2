package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wp_schema_sync/internal/session"
	"wp_schema_sync/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Options configures the HTTP surface.
type Options struct {
	// WebhookSecret is the last path segment of the Telegram webhook URL.
	// Empty disables the webhook route.
	WebhookSecret string
	DownloadTTL   time.Duration
	Debug         bool
}

// Server exposes batch upload over HTTP and the Telegram webhook.
type Server struct {
	router        *gin.Engine
	controller    *session.Controller
	bot           *telegram.Bot
	downloads     *downloadStore
	webhookSecret string
	// updates outlive requests; they and the batches they start run on the
	// server's base context.
	updates *updateQueue
}

// NewServer builds the router. bot may be nil when no Telegram token is configured.
func NewServer(ctx context.Context, controller *session.Controller, bot *telegram.Bot, opts Options) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:        gin.New(),
		controller:    controller,
		bot:           bot,
		downloads:     newDownloadStore(opts.DownloadTTL),
		webhookSecret: opts.WebhookSecret,
	}
	if bot != nil {
		s.updates = newUpdateQueue(ctx, bot.HandleUpdate)
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	{
		api.POST("/batches", s.handleUpload)
		api.POST("/batches/cancel", s.handleCancel)
		api.GET("/results/:token", s.handleDownload)
	}

	if s.bot != nil && s.webhookSecret != "" {
		s.router.POST("/telegram/webhook/:secret", s.handleWebhook)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	}
}
