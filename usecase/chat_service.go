package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrSpeechDisabled = errors.New("speech synthesis is not configured")
	ErrVoiceDisabled  = errors.New("voice input is not configured")
)

type ChatSettings struct {
	SystemInstruction string
	AttachmentPrompt  string
	SpeechMaxChars    int
}

const DefaultAttachmentPrompt = "Analizează materialul atașat:"

type ChatService struct {
	stream   *StreamClient
	store    domain.ConversationStore
	pool     *domain.CredentialPool
	uploader domain.DocumentUploader
	tts      domain.Synthesizer
	stt      domain.Transcriber
	notify   Notifier
	settings ChatSettings
	now      func() time.Time
}

type ChatOption func(*ChatService)

func WithSettings(settings ChatSettings) ChatOption {
	return func(s *ChatService) { s.settings = settings }
}

func WithUploader(u domain.DocumentUploader) ChatOption {
	return func(s *ChatService) { s.uploader = u }
}

func WithSynthesizer(tts domain.Synthesizer) ChatOption {
	return func(s *ChatService) { s.tts = tts }
}

func WithTranscriber(stt domain.Transcriber) ChatOption {
	return func(s *ChatService) { s.stt = stt }
}

func WithChatNotifier(n Notifier) ChatOption {
	return func(s *ChatService) { s.notify = n }
}

func NewChatService(stream *StreamClient, store domain.ConversationStore, pool *domain.CredentialPool, opts ...ChatOption) *ChatService {
	s := &ChatService{
		stream: stream,
		store:  store,
		pool:   pool,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings.AttachmentPrompt == "" {
		s.settings.AttachmentPrompt = DefaultAttachmentPrompt
	}
	if s.settings.SpeechMaxChars <= 0 {
		s.settings.SpeechMaxChars = DefaultSpeechMaxChars
	}
	return s
}

type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

type SendInput struct {
	SessionID  string
	Text       string
	Attachment *Attachment
}

type Reply struct {
	Text string
	// Partial is set when the stream failed after some text arrived.
	Partial bool
}

// Send answers one user message. onChunk receives every text delta as it
// arrives; returning an error from it stops the stream. Whatever text was
// received is persisted as the assistant turn, even when the stream fails
// part way through or the caller goes away.
func (s *ChatService) Send(ctx context.Context, in SendInput, onChunk func(string) error) (Reply, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Reply{}, ErrEmptyMessage
	}
	ctx = log.WithSession(ctx, in.SessionID)

	prior := s.History(ctx, in.SessionID)
	s.save(ctx, domain.Turn{SessionID: in.SessionID, Role: domain.UserRole, Content: in.Text, CreatedAt: s.now()})

	req := domain.GenerateRequest{
		SystemInstruction: s.settings.SystemInstruction,
		History:           domain.HistoryWindow(prior),
		Payload:           s.buildPayload(ctx, in),
	}

	var (
		buf       strings.Builder
		streamErr error
	)
	for chunk, err := range s.stream.Send(ctx, req) {
		if err != nil {
			streamErr = err
			break
		}
		buf.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				streamErr = err
				break
			}
		}
	}

	reply := Reply{Text: buf.String()}
	if reply.Text != "" {
		reply.Partial = streamErr != nil
		s.save(context.WithoutCancel(ctx), domain.Turn{
			SessionID: in.SessionID,
			Role:      domain.AssistantRole,
			Content:   reply.Text,
			CreatedAt: s.now(),
		})
	}

	if streamErr != nil {
		log.WithCtx(ctx).Error("reply stream failed",
			zap.Int("received_chars", len(reply.Text)),
			zap.Error(streamErr))
		return reply, fmt.Errorf("send message: %w", streamErr)
	}
	return reply, nil
}

// History returns the session's turns. Store failures are logged and yield
// an empty history.
func (s *ChatService) History(ctx context.Context, sessionID string) []domain.Turn {
	turns, err := s.store.List(ctx, sessionID)
	if err != nil {
		log.WithCtx(ctx).Error("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return turns
}

func (s *ChatService) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteAll(ctx, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	log.WithCtx(ctx).Info("history cleared", zap.String("session_id", sessionID))
	return nil
}

// Speak synthesizes the spoken form of a reply. It returns nil audio when the
// reply has nothing to say once markup is removed.
func (s *ChatService) Speak(ctx context.Context, text string) ([]byte, error) {
	if s.tts == nil {
		return nil, ErrSpeechDisabled
	}
	speakable := SpeakableText(text, s.settings.SpeechMaxChars)
	if speakable == "" {
		return nil, nil
	}
	audio, err := s.tts.Synthesize(ctx, speakable)
	if err != nil {
		return nil, fmt.Errorf("speak: %w", err)
	}
	return audio, nil
}

func (s *ChatService) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if s.stt == nil {
		return "", ErrVoiceDisabled
	}
	text, err := s.stt.Transcribe(ctx, audio, sampleRate)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// save persists a turn. A failed save is logged and reported as a notice;
// the conversation carries on.
func (s *ChatService) save(ctx context.Context, turn domain.Turn) {
	if err := s.store.Append(ctx, turn); err != nil {
		log.WithCtx(ctx).Error("failed to save turn", zap.String("role", string(turn.Role)), zap.Error(err))
		s.publish(ctx, domain.NoticeStoreFailed, "This message could not be saved to history.")
	}
}

func (s *ChatService) publish(ctx context.Context, kind domain.NoticeKind, text string) {
	if s.notify == nil {
		return
	}
	s.notify(ctx, domain.Notice{
		SessionID: log.SessionID(ctx),
		Kind:      kind,
		Text:      text,
		Timestamp: s.now(),
	})
}
