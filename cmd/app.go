package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/adapters/hasher"
	"github.com/roberta039/Gym-Trainer/adapters/llm"
	"github.com/roberta039/Gym-Trainer/adapters/message_broker"
	"github.com/roberta039/Gym-Trainer/adapters/speech"
	"github.com/roberta039/Gym-Trainer/adapters/store"
	"github.com/roberta039/Gym-Trainer/adapters/tts"
	"github.com/roberta039/Gym-Trainer/config"
	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/usecase"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

// app holds the wired service and everything that needs closing.
type app struct {
	cfg     config.Config
	pool    *domain.CredentialPool
	db      *sql.DB
	broker  *message_broker.ChannelMessageBroker
	chat    *usecase.ChatService
	closers []func() error
}

type appOptions struct {
	voice  bool
	notify usecase.Notifier
}

func loadConfig() (config.Config, *domain.CredentialPool, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log.SetDebug(cfg.Debug)
	pool, err := cfg.CredentialPool(apiKeysFlag...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("%w: no valid API key found in secrets, environment or --api-key", domain.ErrConfiguration)
	}
	return cfg, pool, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, pool, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	a := &app{
		cfg:    cfg,
		pool:   pool,
		db:     db,
		broker: message_broker.NewChannelMessageBroker(),
	}
	a.closers = append(a.closers, a.broker.Close, db.Close)

	notify := opts.notify
	if notify == nil {
		notify = usecase.BrokerNotifier(a.broker)
	}

	gemini := llm.NewGeminiClient(llm.GeminiConfig{
		Model:              cfg.Model,
		SafetyThreshold:    cfg.SafetyThreshold,
		UploadPollInterval: cfg.UploadPollInterval,
	})
	stream := usecase.NewStreamClient(gemini, pool,
		usecase.WithRetryBackoff(cfg.RetryBackoff),
		usecase.WithAttemptTimeout(cfg.AttemptTimeout),
		usecase.WithNotifier(notify),
		usecase.WithHasher(hasher.New(0)),
	)

	chatOpts := []usecase.ChatOption{
		usecase.WithUploader(gemini),
		usecase.WithChatNotifier(notify),
		usecase.WithSettings(usecase.ChatSettings{
			SystemInstruction: cfg.SystemPrompt,
			AttachmentPrompt:  cfg.AttachmentPrompt,
			SpeechMaxChars:    cfg.TTSMaxChars,
		}),
	}
	if opts.voice {
		chatOpts = append(chatOpts, a.voiceOptions(ctx)...)
	}
	a.chat = usecase.NewChatService(stream, store.NewConversationStore(db), pool, chatOpts...)

	log.With(
		zap.Int("api_keys", pool.Len()),
		zap.String("model", cfg.Model),
		zap.String("db", cfg.DBPath),
	).Info("chat service ready")
	return a, nil
}

// voiceOptions connects the Google Cloud speech clients. Either one failing
// only disables that direction.
func (a *app) voiceOptions(ctx context.Context) []usecase.ChatOption {
	var opts []usecase.ChatOption

	synth, err := tts.NewGoogleTTS(ctx, a.cfg.TTSLanguage)
	if err != nil {
		log.With(zap.Error(err)).Warn("speech output disabled")
	} else {
		opts = append(opts, usecase.WithSynthesizer(synth))
		a.closers = append(a.closers, synth.Close)
	}

	recognizer, err := speech.NewGoogleSpeech(ctx, a.cfg.SpeechLanguage)
	if err != nil {
		log.With(zap.Error(err)).Warn("voice input disabled")
	} else {
		opts = append(opts, usecase.WithTranscriber(recognizer))
		a.closers = append(a.closers, recognizer.Close)
	}
	return opts
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.With(zap.Error(err)).Warn("close failed")
		}
	}
}
