package http

import "github.com/labstack/echo/v4"

// Register mounts the chat API on g (normally /api/v1).
func Register(g *echo.Group, h *ChatHandler, auth *Authenticator) {
	// Public endpoints (no auth required)
	g.GET("/health", h.HealthCheck)
	g.POST("/auth/token", auth.GenerateJWT)

	protected := g.Group("", auth.JWTMiddleware, h.RateLimitMiddleware)
	protected.GET("/session", h.Session)
	protected.GET("/sessions/:id/messages", h.History)
	protected.DELETE("/sessions/:id/messages", h.ClearHistory)
	protected.POST("/sessions/:id/messages", h.SendMessage)
	protected.POST("/sessions/:id/voice", h.Voice)
	protected.POST("/speech", h.Speech)
}
