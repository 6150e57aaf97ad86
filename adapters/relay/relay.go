// Package relay runs one chat turn on behalf of a transport. It streams the
// reply as events, forwards the session's notices from the broker while the
// turn is in flight and finishes with the rendered reply.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/adapters/render"
	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/usecase"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

type EventType string

const (
	EventChunk      EventType = "chunk"
	EventNotice     EventType = "notice"
	EventDone       EventType = "done"
	EventError      EventType = "error"
	EventHistory    EventType = "history"
	EventTranscript EventType = "transcript"
)

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type ChunkData struct {
	Text string `json:"text"`
}

type DoneData struct {
	Text    string `json:"text"`
	HTML    string `json:"html"`
	Audio   string `json:"audio,omitempty"` // base64 MP3
	Partial bool   `json:"partial,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TranscriptData struct {
	Text string `json:"text"`
}

type TurnView struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	HTML      string      `json:"html,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type HistoryData struct {
	SessionID string     `json:"session_id"`
	Turns     []TurnView `json:"turns"`
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// ErrorEvent maps a turn failure to a stable error code.
func ErrorEvent(err error) Event {
	return NewEvent(EventError, ErrorData{Code: ErrorCode(err), Message: err.Error()})
}

func ErrorCode(err error) string {
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, domain.ErrStreamInterrupted):
		return "stream_interrupted"
	case errors.Is(err, usecase.ErrSpeechDisabled), errors.Is(err, usecase.ErrVoiceDisabled):
		return "not_configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "model_error"
	}
}

// Emitter delivers one event to the client. Calls are serialized.
type Emitter func(Event) error

type Relay struct {
	chat   *usecase.ChatService
	broker domain.MessageBroker
}

func New(chat *usecase.ChatService, broker domain.MessageBroker) *Relay {
	return &Relay{chat: chat, broker: broker}
}

// History returns the session's turns, assistant turns rendered to HTML.
func (r *Relay) History(ctx context.Context, sessionID string) HistoryData {
	turns := r.chat.History(ctx, sessionID)
	views := make([]TurnView, 0, len(turns))
	for _, t := range turns {
		v := TurnView{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt}
		if t.Role == domain.AssistantRole {
			v.HTML = render.Render(t.Content).HTML()
		}
		views = append(views, v)
	}
	return HistoryData{SessionID: sessionID, Turns: views}
}

// Run sends one message and emits chunk and notice events while the reply
// streams. A turn that produced text always ends with a done event, after
// an error event if the stream broke. The turn's error is returned for the
// caller's logs; it has already been emitted.
func (r *Relay) Run(ctx context.Context, in usecase.SendInput, speak bool, emit Emitter) error {
	ctx = log.WithSession(ctx, in.SessionID)

	var mu sync.Mutex
	send := func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		return emit(ev)
	}

	stopNotices := r.forwardNotices(ctx, in.SessionID, send)

	reply, err := r.chat.Send(ctx, in, func(chunk string) error {
		return send(NewEvent(EventChunk, ChunkData{Text: chunk}))
	})

	stopNotices()

	if err != nil {
		if emitErr := send(ErrorEvent(err)); emitErr != nil {
			log.WithCtx(ctx).Debug("client gone before error event", zap.Error(emitErr))
		}
	}
	if reply.Text == "" {
		return err
	}

	done := DoneData{
		Text:    reply.Text,
		HTML:    render.Render(reply.Text).HTML(),
		Partial: reply.Partial,
	}
	if speak {
		audio, speakErr := r.chat.Speak(context.WithoutCancel(ctx), reply.Text)
		if speakErr != nil {
			log.WithCtx(ctx).Warn("speech synthesis failed", zap.Error(speakErr))
		} else if len(audio) > 0 {
			done.Audio = base64.StdEncoding.EncodeToString(audio)
		}
	}
	if emitErr := send(NewEvent(EventDone, done)); emitErr != nil {
		log.WithCtx(ctx).Debug("client gone before done event", zap.Error(emitErr))
	}
	return err
}

// forwardNotices relays the session's notices until the returned stop
// function is called. stop also flushes notices published before it ran.
func (r *Relay) forwardNotices(ctx context.Context, sessionID string, send Emitter) (stop func()) {
	if r.broker == nil {
		return func() {}
	}
	subCtx, cancel := context.WithCancel(ctx)
	notices, err := r.broker.Subscribe(subCtx, domain.NoticeTopic, sessionID)
	if err != nil {
		log.WithCtx(ctx).Warn("failed to subscribe to notices", zap.Error(err))
		cancel()
		return func() {}
	}

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case msg, ok := <-notices:
				if !ok {
					return
				}
				forwardNotice(ctx, msg, send)
			case <-quit:
				return
			}
		}
	}()

	return func() {
		close(quit)
		wg.Wait()
	drain:
		for {
			select {
			case msg, ok := <-notices:
				if !ok {
					break drain
				}
				forwardNotice(ctx, msg, send)
			default:
				break drain
			}
		}
		cancel()
	}
}

func forwardNotice(ctx context.Context, msg domain.BrokerMessage, send Emitter) {
	var notice domain.Notice
	if err := json.Unmarshal(msg.Payload, &notice); err != nil {
		log.WithCtx(ctx).Error("failed to unmarshal notice", zap.Error(err))
		return
	}
	if err := send(NewEvent(EventNotice, notice)); err != nil {
		log.WithCtx(ctx).Debug("failed to forward notice", zap.Error(err))
	}
}
