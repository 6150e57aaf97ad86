package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/adapters/relay"
	"github.com/roberta039/Gym-Trainer/usecase"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

type Server struct {
	upgrader websocket.Upgrader
	chat     *usecase.ChatService
	relay    *relay.Relay
	hub      *Hub
}

func NewServer(chat *usecase.ChatService, r *relay.Relay) *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		chat:     chat,
		relay:    r,
		hub:      NewHub(),
	}
}

func (s *Server) RunWebsocketHub() {
	s.hub.Run()
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// Shutdown closes every live connection.
func (s *Server) Shutdown() {
	s.hub.Stop()
}

// handleFrame dispatches one client frame. Chat turns stream their events
// to the client that asked; clearing history is pushed to every client of
// the session.
func (s *Server) handleFrame(c *Client, frame []byte) {
	ctx := c.Context()

	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		c.SendEvent(protocolError("invalid JSON frame"))
		return
	}

	switch in.Type {
	case TypeMessage:
		err := s.relay.Run(ctx, usecase.SendInput{SessionID: c.sessionID, Text: in.Text}, in.Speak, c.SendEvent)
		if err != nil {
			log.WithCtx(ctx).Warn("turn ended with error", zap.Error(err))
		}

	case TypeClear:
		if err := s.chat.Clear(ctx, c.sessionID); err != nil {
			log.WithCtx(ctx).Error("failed to clear history", zap.Error(err))
			c.SendEvent(relay.ErrorEvent(err))
			return
		}
		s.pushHistory(ctx, c.sessionID)

	default:
		c.SendEvent(protocolError("unknown frame type " + in.Type))
	}
}

func (s *Server) pushHistory(ctx context.Context, sessionID string) {
	payload, err := json.Marshal(relay.NewEvent(relay.EventHistory, s.relay.History(ctx, sessionID)))
	if err != nil {
		log.WithCtx(ctx).Error("failed to marshal history", zap.Error(err))
		return
	}
	s.hub.SendToSession(sessionID, payload)
}
