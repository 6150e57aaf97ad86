package domain

import (
	"context"
	"time"
)

// MessageBroker defines the interface for message broker operations
type MessageBroker interface {
	// Publish sends a message to every subscriber of topic and routingKey
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a specific topic and routing key.
	// The channel is closed once ctx is done or the broker is closed.
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan BrokerMessage, error)

	// Close closes the message broker connection
	Close() error
}

// BrokerMessage is a message received from the broker
type BrokerMessage struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// NoticeTopic carries user-facing, non-fatal notifications. Routing key is
// the session id.
const NoticeTopic = "chat.notices"

type NoticeKind string

const (
	NoticeRetrying         NoticeKind = "retrying"
	NoticeRotating         NoticeKind = "rotating"
	NoticeAttachmentFailed NoticeKind = "attachment_failed"
	NoticeStoreFailed      NoticeKind = "store_failed"
)

// Notice is a transient notification about the request in flight.
type Notice struct {
	SessionID string     `json:"session_id"`
	Kind      NoticeKind `json:"kind"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}
