package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roberta039/Gym-Trainer/adapters/store"
	"github.com/roberta039/Gym-Trainer/domain"
)

// recordingProvider runs a fakeProvider and keeps every request it saw.
type recordingProvider struct {
	fakeProvider
	reqMu    sync.Mutex
	requests []domain.GenerateRequest
}

func (p *recordingProvider) Stream(ctx context.Context, key string, req domain.GenerateRequest) iter.Seq2[string, error] {
	p.reqMu.Lock()
	p.requests = append(p.requests, req)
	p.reqMu.Unlock()
	return p.fakeProvider.Stream(ctx, key, req)
}

func (p *recordingProvider) lastRequest() domain.GenerateRequest {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	return p.requests[len(p.requests)-1]
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (r *noticeRecorder) notify(_ context.Context, n domain.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) kinds() []domain.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.NoticeKind, len(r.notices))
	for i, n := range r.notices {
		kinds[i] = n.Kind
	}
	return kinds
}

type fakeUploader struct {
	err  error
	keys []string
	docs []domain.Document
}

func (u *fakeUploader) UploadDocument(_ context.Context, key string, doc domain.Document) (domain.FilePart, error) {
	u.keys = append(u.keys, key)
	u.docs = append(u.docs, doc)
	if u.err != nil {
		return domain.FilePart{}, u.err
	}
	return domain.FilePart{URI: "https://files/plan.pdf", MIMEType: doc.MIMEType}, nil
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, domain.Turn) error { return errors.New("disk full") }
func (brokenStore) List(context.Context, string) ([]domain.Turn, error) {
	return nil, errors.New("database is locked")
}
func (brokenStore) DeleteAll(context.Context, string) error { return errors.New("database is locked") }

type fakeSynthesizer struct{ texts []string }

func (s *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.texts = append(s.texts, text)
	return []byte("mp3"), nil
}

type fakeTranscriber struct{ text string }

func (s fakeTranscriber) Transcribe(context.Context, []byte, int) (string, error) { return s.text, nil }

func newStore(t *testing.T) *store.ConversationStore {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewConversationStore(db)
}

type chatFixture struct {
	provider *recordingProvider
	pool     *domain.CredentialPool
	store    domain.ConversationStore
	notices  *noticeRecorder
	service  *ChatService
}

func newChatFixture(t *testing.T, script func(call int, key string) step, conv domain.ConversationStore, opts ...ChatOption) *chatFixture {
	t.Helper()
	f := &chatFixture{
		provider: &recordingProvider{fakeProvider: fakeProvider{script: script}},
		pool:     newPool(t, "k0", "k1"),
		store:    conv,
		notices:  &noticeRecorder{},
	}
	stream := newTestClient(f.provider, f.pool, &sleepRecorder{}, WithNotifier(f.notices.notify))
	opts = append([]ChatOption{
		WithChatNotifier(f.notices.notify),
		WithSettings(ChatSettings{SystemInstruction: "You are GymBro."}),
	}, opts...)
	f.service = NewChatService(stream, conv, f.pool, opts...)
	return f
}

func TestChatService_SendRotatesAndPersists(t *testing.T) {
	conv := newStore(t)
	f := newChatFixture(t, func(_ int, key string) step {
		if key == "k0" {
			return step{err: quotaErr()}
		}
		return step{chunks: []string{"Day 1: ", "squats ", "5x5"}}
	}, conv)
	ctx := context.Background()

	var streamed []string
	reply, err := f.service.Send(ctx, SendInput{SessionID: "s1", Text: "Plan for me"}, func(chunk string) error {
		streamed = append(streamed, chunk)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Day 1: squats 5x5", reply.Text)
	assert.False(t, reply.Partial)
	assert.Equal(t, []string{"Day 1: ", "squats ", "5x5"}, streamed)
	assert.Equal(t, 1, f.pool.Cursor())
	assert.Equal(t, []string{"k0", "k1"}, f.provider.calls())
	assert.Contains(t, f.notices.kinds(), domain.NoticeRotating)

	turns := f.service.History(ctx, "s1")
	require.Len(t, turns, 2)
	assert.Equal(t, domain.UserRole, turns[0].Role)
	assert.Equal(t, "Plan for me", turns[0].Content)
	assert.Equal(t, domain.AssistantRole, turns[1].Role)
	assert.Equal(t, "Day 1: squats 5x5", turns[1].Content)

	req := f.provider.lastRequest()
	assert.Equal(t, "You are GymBro.", req.SystemInstruction)
	assert.Empty(t, req.History)
	assert.Equal(t, []domain.Part{domain.TextPart("Plan for me")}, req.Payload)
}

func TestChatService_SendIncludesPriorTurns(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{chunks: []string{"ok"}} }, newStore(t))
	ctx := context.Background()

	_, err := f.service.Send(ctx, SendInput{SessionID: "s1", Text: "first"}, nil)
	require.NoError(t, err)
	_, err = f.service.Send(ctx, SendInput{SessionID: "s1", Text: "second"}, nil)
	require.NoError(t, err)

	req := f.provider.lastRequest()
	require.Len(t, req.History, 2)
	assert.Equal(t, domain.ModelRoleUser, req.History[0].Role)
	assert.Equal(t, domain.ModelRoleModel, req.History[1].Role)
	assert.Equal(t, "ok", req.History[1].Parts[0].Text)
}

func TestChatService_PartialReplyIsPersisted(t *testing.T) {
	f := newChatFixture(t, func(int, string) step {
		return step{chunks: []string{"A", "B"}, err: overloadedErr()}
	}, newStore(t))
	ctx := context.Background()

	reply, err := f.service.Send(ctx, SendInput{SessionID: "s1", Text: "go"}, nil)

	require.ErrorIs(t, err, domain.ErrStreamInterrupted)
	assert.Equal(t, "AB", reply.Text)
	assert.True(t, reply.Partial)

	turns := f.service.History(ctx, "s1")
	require.Len(t, turns, 2)
	assert.Equal(t, "AB", turns[1].Content)
}

func TestChatService_CallbackErrorStopsStream(t *testing.T) {
	f := newChatFixture(t, func(int, string) step {
		return step{chunks: []string{"A", "B", "C"}}
	}, newStore(t))
	stop := errors.New("client went away")

	reply, err := f.service.Send(context.Background(), SendInput{SessionID: "s1", Text: "go"}, func(string) error {
		return stop
	})

	require.ErrorIs(t, err, stop)
	assert.Equal(t, "A", reply.Text)
	assert.Equal(t, 1, f.provider.released)
}

func TestChatService_FailedStreamWithoutTextStoresOnlyUserTurn(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{err: errors.New("boom")} }, newStore(t))
	ctx := context.Background()

	reply, err := f.service.Send(ctx, SendInput{SessionID: "s1", Text: "go"}, nil)

	require.Error(t, err)
	assert.Empty(t, reply.Text)
	turns := f.service.History(ctx, "s1")
	require.Len(t, turns, 1)
	assert.Equal(t, domain.UserRole, turns[0].Role)
}

func TestChatService_EmptyMessageRejected(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{} }, newStore(t))

	_, err := f.service.Send(context.Background(), SendInput{SessionID: "s1", Text: "  \n"}, nil)

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.provider.calls())
}

func TestChatService_StoreFailuresDoNotBlockReply(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{chunks: []string{"still here"}} }, brokenStore{})

	reply, err := f.service.Send(context.Background(), SendInput{SessionID: "s1", Text: "hi"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "still here", reply.Text)
	assert.Equal(t, []domain.NoticeKind{domain.NoticeStoreFailed, domain.NoticeStoreFailed}, f.notices.kinds())
	assert.Empty(t, f.service.History(context.Background(), "s1"))
}

func TestChatService_ClearIsIdempotent(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{chunks: []string{"x"}} }, newStore(t))
	ctx := context.Background()

	_, err := f.service.Send(ctx, SendInput{SessionID: "s1", Text: "hi"}, nil)
	require.NoError(t, err)
	_, err = f.service.Send(ctx, SendInput{SessionID: "s2", Text: "hi"}, nil)
	require.NoError(t, err)

	require.NoError(t, f.service.Clear(ctx, "s1"))
	require.NoError(t, f.service.Clear(ctx, "s1"))
	assert.Empty(t, f.service.History(ctx, "s1"))
	assert.Len(t, f.service.History(ctx, "s2"), 2)
}

func TestChatService_ClearReportsStoreError(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{} }, brokenStore{})

	assert.Error(t, f.service.Clear(context.Background(), "s1"))
}

func TestChatService_ImageAttachmentIsInlined(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{chunks: []string{"nice form"}} }, newStore(t))
	png := []byte("\x89PNG\r\n\x1a\n0000")

	_, err := f.service.Send(context.Background(), SendInput{
		SessionID:  "s1",
		Text:       "check my squat",
		Attachment: &Attachment{Name: "squat.png", Data: png},
	}, nil)
	require.NoError(t, err)

	payload := f.provider.lastRequest().Payload
	require.Len(t, payload, 3)
	assert.Equal(t, DefaultAttachmentPrompt, payload[0].Text)
	require.NotNil(t, payload[1].Image)
	assert.Equal(t, "image/png", payload[1].Image.MIMEType)
	assert.Equal(t, "check my squat", payload[2].Text)
}

func TestChatService_PDFAttachmentIsUploadedWithCurrentKey(t *testing.T) {
	uploader := &fakeUploader{}
	f := newChatFixture(t, func(int, string) step { return step{chunks: []string{"read it"}} }, newStore(t), WithUploader(uploader))
	f.pool.Advance(0)

	_, err := f.service.Send(context.Background(), SendInput{
		SessionID:  "s1",
		Text:       "review my plan",
		Attachment: &Attachment{Name: "plan.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1"}, uploader.keys)
	body, err := io.ReadAll(uploader.docs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))

	payload := f.provider.lastRequest().Payload
	require.Len(t, payload, 3)
	require.NotNil(t, payload[1].File)
	assert.Equal(t, "https://files/plan.pdf", payload[1].File.URI)
}

func TestChatService_AttachmentFailureProceedsWithoutIt(t *testing.T) {
	tests := []struct {
		name       string
		attachment *Attachment
		uploader   *fakeUploader
	}{
		{"upload fails", &Attachment{Name: "plan.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")}, &fakeUploader{err: errors.New("processing plan.pdf failed")}},
		{"unsupported type", &Attachment{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")}, &fakeUploader{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, func(int, string) step { return step{chunks: []string{"ok"}} }, newStore(t), WithUploader(tt.uploader))

			reply, err := f.service.Send(context.Background(), SendInput{SessionID: "s1", Text: "hi", Attachment: tt.attachment}, nil)

			require.NoError(t, err)
			assert.Equal(t, "ok", reply.Text)
			assert.Equal(t, []domain.Part{domain.TextPart("hi")}, f.provider.lastRequest().Payload)
			assert.Equal(t, []domain.NoticeKind{domain.NoticeAttachmentFailed}, f.notices.kinds())
		})
	}
}

func TestChatService_Speak(t *testing.T) {
	tts := &fakeSynthesizer{}
	f := newChatFixture(t, func(int, string) step { return step{} }, newStore(t), WithSynthesizer(tts))
	ctx := context.Background()

	audio, err := f.service.Speak(ctx, "Hold <b>plank</b> [[DESEN_SVG]]<svg><rect/></svg>[[/DESEN_SVG]]")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
	assert.Equal(t, []string{"Hold plank"}, tts.texts)

	audio, err = f.service.Speak(ctx, "<svg></svg>")
	require.NoError(t, err)
	assert.Nil(t, audio)
	assert.Len(t, tts.texts, 1)
}

func TestChatService_SpeechAndVoiceDisabled(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{} }, newStore(t))

	_, err := f.service.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSpeechDisabled)
	_, err = f.service.Transcribe(context.Background(), []byte{0, 1}, 16000)
	assert.ErrorIs(t, err, ErrVoiceDisabled)
}

func TestChatService_Transcribe(t *testing.T) {
	f := newChatFixture(t, func(int, string) step { return step{} }, newStore(t), WithTranscriber(fakeTranscriber{text: "  bench press  "}))

	text, err := f.service.Transcribe(context.Background(), []byte{0, 1}, 16000)

	require.NoError(t, err)
	assert.Equal(t, "bench press", text)
}
