package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
	"go.uber.org/zap"
)

const subscriberBuffer = 32

// ChannelMessageBroker implements MessageBroker using Go channels. Every
// subscriber of a topic/routingKey pair receives its own copy of a message;
// a subscriber that falls behind loses messages rather than blocking the
// publisher.
type ChannelMessageBroker struct {
	topics map[string]map[*subscriber]struct{}
	mu     sync.RWMutex
	closed bool
}

type subscriber struct {
	ch   chan domain.BrokerMessage
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewChannelMessageBroker creates a new channel-based message broker
func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		topics: make(map[string]map[*subscriber]struct{}),
	}
}

// makeKey creates a unique key for topic and routingKey
func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

// Publish sends a message to a specific topic and routing key. Publishing
// with no subscribers is not an error.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	msg := domain.BrokerMessage{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}

	subs := b.topics[makeKey(topic, routingKey)]
	for sub := range subs {
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			log.WithCtx(ctx).Warn("subscriber channel full, dropping message",
				zap.String("topic", topic),
				zap.String("routingKey", routingKey))
		}
	}

	log.WithCtx(ctx).Debug("message published to topic",
		zap.String("topic", topic),
		zap.String("routingKey", routingKey),
		zap.Int("subscribers", len(subs)),
		zap.Int("payload_size", len(message)))
	return nil
}

// Subscribe listens for messages on a specific topic and routing key until
// ctx is done.
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.BrokerMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	key := makeKey(topic, routingKey)
	subs, exists := b.topics[key]
	if !exists {
		subs = make(map[*subscriber]struct{})
		b.topics[key] = subs
	}
	sub := &subscriber{ch: make(chan domain.BrokerMessage, subscriberBuffer)}
	subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.unsubscribe(key, sub)
	}()

	log.WithCtx(ctx).Debug("subscribed to topic", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return sub.ch, nil
}

func (b *ChannelMessageBroker) unsubscribe(key string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, key)
		}
	}
	sub.close()
}

// Close closes the message broker and all subscriber channels
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for key, subs := range b.topics {
		for sub := range subs {
			sub.close()
		}
		log.With(zap.String("key", key)).Debug("closed topic subscribers")
	}

	b.topics = make(map[string]map[*subscriber]struct{})

	log.With().Info("message broker closed")
	return nil
}

// GetTopicCount returns the number of topics with at least one subscriber
func (b *ChannelMessageBroker) GetTopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

// IsClosed returns whether the broker is closed
func (b *ChannelMessageBroker) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
