package websocket

import (
	"context"
	"encoding/json"
	"iter"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roberta039/Gym-Trainer/adapters/message_broker"
	"github.com/roberta039/Gym-Trainer/adapters/relay"
	"github.com/roberta039/Gym-Trainer/adapters/store"
	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/usecase"
)

type echoProvider struct{}

// Stream answers with the user's text split in two chunks.
func (echoProvider) Stream(_ context.Context, _ string, req domain.GenerateRequest) iter.Seq2[string, error] {
	text := req.Payload[len(req.Payload)-1].Text
	return func(yield func(string, error) bool) {
		if !yield("you said: ", nil) {
			return
		}
		yield(text, nil)
	}
}

type frame struct {
	Type relay.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broker := message_broker.NewChannelMessageBroker()
	t.Cleanup(func() { broker.Close() })

	pool, err := domain.NewCredentialPool([]string{"k0"})
	require.NoError(t, err)
	stream := usecase.NewStreamClient(echoProvider{}, pool)
	chat := usecase.NewChatService(stream, store.NewConversationStore(db), pool)

	server := NewServer(chat, relay.New(chat, broker))
	server.RunWebsocketHub()
	t.Cleanup(server.Shutdown)

	e := echo.New()
	e.GET("/ws", server.Handler)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	return server, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, want relay.EventType) []frame {
	t.Helper()
	var frames []frame
	for {
		f := readFrame(t, conn)
		frames = append(frames, f)
		if f.Type == want {
			return frames
		}
	}
}

func TestServer_ChatOverWebSocket(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url+"?session_id=s1")

	first := readFrame(t, conn)
	require.Equal(t, relay.EventHistory, first.Type)
	var history relay.HistoryData
	require.NoError(t, json.Unmarshal(first.Data, &history))
	assert.Equal(t, "s1", history.SessionID)
	assert.Empty(t, history.Turns)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeMessage, Text: "squats"}))

	frames := readUntil(t, conn, relay.EventDone)
	require.Len(t, frames, 3)
	assert.Equal(t, relay.EventChunk, frames[0].Type)
	var done relay.DoneData
	require.NoError(t, json.Unmarshal(frames[2].Data, &done))
	assert.Equal(t, "you said: squats", done.Text)
}

func TestServer_ClearPushesHistoryToEverySessionClient(t *testing.T) {
	server, url := newTestServer(t)
	a := dial(t, url+"?session_id=s1")
	b := dial(t, url+"?session_id=s1")
	readFrame(t, a)
	readFrame(t, b)

	require.NoError(t, a.WriteJSON(Inbound{Type: TypeMessage, Text: "hi"}))
	readUntil(t, a, relay.EventDone)

	require.NoError(t, a.WriteJSON(Inbound{Type: TypeClear}))

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		require.Equal(t, relay.EventHistory, f.Type)
		var history relay.HistoryData
		require.NoError(t, json.Unmarshal(f.Data, &history))
		assert.Empty(t, history.Turns)
	}
	assert.True(t, server.GetHub().IsSessionConnected("s1"))
	assert.False(t, server.GetHub().IsSessionConnected("s2"))
}

func TestServer_MintsSessionID(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	f := readFrame(t, conn)
	var history relay.HistoryData
	require.NoError(t, json.Unmarshal(f.Data, &history))
	assert.Len(t, history.SessionID, 36)
}

func TestServer_RejectsBadFrames(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url+"?session_id=s1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := readFrame(t, conn)
	require.Equal(t, relay.EventError, f.Type)
	assert.Contains(t, string(f.Data), "bad_request")

	require.NoError(t, conn.WriteJSON(Inbound{Type: "dance"}))
	f = readFrame(t, conn)
	require.Equal(t, relay.EventError, f.Type)
	assert.Contains(t, string(f.Data), "unknown frame type")

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeMessage, Text: " "}))
	f = readFrame(t, conn)
	require.Equal(t, relay.EventError, f.Type)
	assert.Contains(t, string(f.Data), "empty_message")
}
