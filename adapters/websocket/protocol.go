package websocket

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/adapters/relay"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

// Inbound frame types.
const (
	TypeMessage = "message"
	TypeClear   = "clear"
)

// Inbound is a frame sent by the client.
type Inbound struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Speak bool   `json:"speak,omitempty"`
}

func busyEvent() relay.Event {
	return relay.NewEvent(relay.EventError, relay.ErrorData{
		Code:    "busy",
		Message: "a reply is still streaming",
	})
}

func protocolError(message string) relay.Event {
	return relay.NewEvent(relay.EventError, relay.ErrorData{Code: "bad_request", Message: message})
}

// SendEvent marshals and queues an event for the client.
func (c *Client) SendEvent(ev relay.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.WithCtx(c.ctx).Error("failed to marshal event", zap.Error(err))
		return err
	}
	return c.SendMessage(payload)
}
