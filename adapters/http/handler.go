package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/adapters/relay"
	"github.com/roberta039/Gym-Trainer/usecase"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

const (
	MaxConcurrent     = 10
	MaxAttachmentSize = 20 << 20
	MaxAudioSize      = 10 << 20
	MaxSampleRate     = 48000
	maxSessionIDLen   = 128
)

// SessionBroadcaster pushes a message to every live connection of a session.
type SessionBroadcaster interface {
	SendToSession(sessionID string, message []byte) int
}

type ChatHandler struct {
	chat        *usecase.ChatService
	relay       *relay.Relay
	broadcaster SessionBroadcaster
	// slots bounds requests in flight across every route.
	slots       chan struct{}
}

type messageRequest struct {
	Text  string `json:"text" form:"text"`
	Speak bool   `json:"speak" form:"speak"`
}

type speechRequest struct {
	Text string `json:"text"`
}

func NewChatHandler(chat *usecase.ChatService, r *relay.Relay, broadcaster SessionBroadcaster) *ChatHandler {
	return &ChatHandler{
		chat:        chat,
		relay:       r,
		broadcaster: broadcaster,
		slots:       make(chan struct{}, MaxConcurrent),
	}
}

// Health check endpoint
func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "gym-trainer",
	})
}

// Session returns the caller's session id, minting one when none is given.
// Clients keep it (the web client in the URL) to resume a conversation.
func (h *ChatHandler) Session(c echo.Context) error {
	id := c.QueryParam("session_id")
	created := false
	if id == "" {
		id = uuid.NewString()
		created = true
	} else if err := validateSessionID(id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": id,
		"created":    created,
	})
}

func (h *ChatHandler) History(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	ctx := log.WithSession(c.Request().Context(), id)
	return c.JSON(http.StatusOK, h.relay.History(ctx, id))
}

func (h *ChatHandler) ClearHistory(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	ctx := log.WithSession(c.Request().Context(), id)
	if err := h.chat.Clear(ctx, id); err != nil {
		log.WithCtx(ctx).Error("failed to clear history", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to clear history")
	}
	h.broadcastHistory(c, id)
	return c.NoContent(http.StatusNoContent)
}

// SendMessage accepts a JSON, form or multipart message with an optional
// "attachment" file and streams the reply as server-sent events.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}

	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Message text is required")
	}

	attachment, err := formAttachment(c)
	if err != nil {
		return err
	}

	in := usecase.SendInput{SessionID: id, Text: req.Text, Attachment: attachment}
	return h.streamTurn(c, in, req.Speak)
}

// Voice transcribes a LINEAR16 audio body and answers it like a typed message.
func (h *ChatHandler) Voice(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}

	sampleRate := 0
	if v := c.QueryParam("sample_rate"); v != "" {
		if sampleRate, err = strconv.Atoi(v); err != nil || sampleRate <= 0 || sampleRate > MaxSampleRate {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("sample_rate must be 1-%d", MaxSampleRate))
		}
	}

	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxAudioSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read audio")
	}
	if len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Audio body is required")
	}
	if len(audio) > MaxAudioSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Audio is too large")
	}

	ctx := log.WithSession(c.Request().Context(), id)
	text, err := h.chat.Transcribe(ctx, audio, sampleRate)
	switch {
	case errors.Is(err, usecase.ErrVoiceDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, "Voice input is not configured")
	case err != nil:
		log.WithCtx(ctx).Error("transcription failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to transcribe audio")
	case text == "":
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "No speech recognized")
	}

	speak := c.QueryParam("speak") == "true"
	return h.streamTurn(c, usecase.SendInput{SessionID: id, Text: text}, speak,
		relay.NewEvent(relay.EventTranscript, relay.TranscriptData{Text: text}))
}

// Speech returns the spoken form of a reply as MP3.
func (h *ChatHandler) Speech(c echo.Context) error {
	var req speechRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	audio, err := h.chat.Speak(c.Request().Context(), req.Text)
	switch {
	case errors.Is(err, usecase.ErrSpeechDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, "Speech output is not configured")
	case err != nil:
		log.WithCtx(c.Request().Context()).Error("speech synthesis failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to synthesize speech")
	case len(audio) == 0:
		return c.NoContent(http.StatusNoContent)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

// RateLimitMiddleware caps the number of requests served at once. The cap
// is shared by every route the middleware wraps.
func (h *ChatHandler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		select {
		case h.slots <- struct{}{}:
			defer func() { <-h.slots }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

func (h *ChatHandler) streamTurn(c echo.Context, in usecase.SendInput, speak bool, preamble ...relay.Event) error {
	ctx := log.WithSession(c.Request().Context(), in.SessionID)
	w := newSSEWriter(c.Response())

	for _, ev := range preamble {
		if err := w.Write(ev); err != nil {
			return nil
		}
	}

	if err := h.relay.Run(ctx, in, speak, w.Write); err != nil {
		log.WithCtx(ctx).Warn("turn ended with error", zap.Error(err))
	}
	return nil
}

func (h *ChatHandler) broadcastHistory(c echo.Context, sessionID string) {
	if h.broadcaster == nil {
		return
	}
	ctx := log.WithSession(c.Request().Context(), sessionID)
	payload, err := json.Marshal(relay.NewEvent(relay.EventHistory, h.relay.History(ctx, sessionID)))
	if err != nil {
		log.WithCtx(ctx).Error("failed to marshal history event", zap.Error(err))
		return
	}
	n := h.broadcaster.SendToSession(sessionID, payload)
	log.WithCtx(ctx).Debug("history pushed to live clients", zap.Int("clients", n))
}

func formAttachment(c echo.Context) (*usecase.Attachment, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	fh, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid attachment")
	}
	if fh.Size > MaxAttachmentSize {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Attachment is too large")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid attachment")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to read attachment")
	}
	return &usecase.Attachment{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get(echo.HeaderContentType),
		Data:     data,
	}, nil
}

func sessionParam(c echo.Context) (string, error) {
	id := c.Param("id")
	if err := validateSessionID(id); err != nil {
		return "", err
	}
	return id, nil
}

func validateSessionID(id string) error {
	if id == "" || len(id) > maxSessionIDLen {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("session id must be 1-%d characters", maxSessionIDLen))
	}
	return nil
}
