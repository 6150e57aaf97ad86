package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	chathttp "github.com/roberta039/Gym-Trainer/adapters/http"
	"github.com/roberta039/Gym-Trainer/adapters/relay"
	"github.com/roberta039/Gym-Trainer/adapters/websocket"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

const shutdownTimeout = 10 * time.Second

var (
	listenFlag string
	voiceFlag  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServe,
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenFlag, "listen", "", "listen address (overrides LISTEN_ADDR)")
	cmd.Flags().BoolVar(&voiceFlag, "voice", false, "enable Google Cloud speech input and output")
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{voice: voiceFlag})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.ListenAddr
	if listenFlag != "" {
		addr = listenFlag
	}

	rl := relay.New(a.chat, a.broker)
	server := websocket.NewServer(a.chat, rl)
	server.RunWebsocketHub()
	defer server.Shutdown()

	auth := chathttp.NewAuthenticator(a.cfg.AuthClientKey, a.cfg.AuthClientSecret, a.cfg.JWTSecret)
	handler := chathttp.NewChatHandler(a.chat, rl, server.GetHub())

	e := newEcho(a.cfg.RateLimit)

	// JWT auth for WebSocket (same as HTTP)
	wsGroup := e.Group("/ws")
	wsGroup.Use(auth.JWTMiddleware)
	wsGroup.GET("", server.Handler)

	// HTTP API routes
	chathttp.Register(e.Group("/api/v1"), handler, auth)

	logger := log.With(zap.String("addr", addr), zap.Bool("auth", auth.Enabled()))
	logger.Info("starting server")
	logger.Info("available endpoints",
		zap.Strings("routes", []string{
			"GET    /api/v1/health",
			"POST   /api/v1/auth/token",
			"GET    /api/v1/session",
			"GET    /api/v1/sessions/:id/messages",
			"POST   /api/v1/sessions/:id/messages",
			"DELETE /api/v1/sessions/:id/messages",
			"POST   /api/v1/sessions/:id/voice",
			"POST   /api/v1/speech",
			"GET    /ws",
		}))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho(requestsPerSecond int) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(log.WithRequest(c.Request().Context(), id)))
		},
	}))

	// Security middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(requestsPerSecond))))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-API-Key",
			"X-API-Secret",
			"Content-Length",
		},
		MaxAge: 86400,
	}))

	// Request size limit
	e.Use(middleware.BodyLimit("25MB"))

	return e
}
