package websocket

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/adapters/relay"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

// Handler serves "/ws?session_id=". Without a session id a new one is
// minted and announced in the initial history event.
func (s *Server) Handler(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// The request context ends with the handler; the client outlives it
	// only as long as this handler is blocked below.
	client := NewClient(context.WithoutCancel(c.Request().Context()), conn, sessionID)
	s.hub.Register(client)
	defer s.hub.Unregister(client)

	client.Run(s.handleFrame)

	if err := client.SendEvent(relay.NewEvent(relay.EventHistory, s.relay.History(client.Context(), sessionID))); err != nil {
		log.WithCtx(client.Context()).Debug("failed to send initial history", zap.Error(err))
	}

	// Wait for the client context to be done (connection closed)
	<-client.Context().Done()

	return nil
}
