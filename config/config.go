// Package config loads runtime configuration from the environment, an
// optional .env file and an optional TOML secrets file. Every field has a
// default so the binary runs locally with only an API key.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/subosito/gotenv"

	"github.com/roberta039/Gym-Trainer/domain"
)

//go:embed prompts/gymbro.txt
var defaultSystemPrompt string

type Config struct {
	// Credentials gathered from the secrets file then the environment, in
	// that order. Duplicates are removed when the pool is built.
	Credentials []string

	Model            string // GEMINI_MODEL
	SystemPrompt     string // SYSTEM_PROMPT, SYSTEM_PROMPT_FILE
	AttachmentPrompt string // ATTACHMENT_PROMPT
	SafetyThreshold  string // SAFETY_THRESHOLD

	DBPath     string // DB_PATH
	ListenAddr string // LISTEN_ADDR

	RetryBackoff       time.Duration // RETRY_BACKOFF
	AttemptTimeout     time.Duration // ATTEMPT_TIMEOUT, 0 disables
	UploadPollInterval time.Duration // UPLOAD_POLL_INTERVAL

	TTSLanguage    string // TTS_LANGUAGE
	TTSMaxChars    int    // TTS_MAX_CHARS
	SpeechLanguage string // SPEECH_LANGUAGE

	AuthClientKey    string // AUTH_CLIENT_KEY, empty disables auth
	AuthClientSecret string // AUTH_CLIENT_SECRET
	JWTSecret        string // JWT_SECRET
	RateLimit        int    // RATE_LIMIT, requests per second per client

	Debug bool // DEBUG
}

const (
	envKeyAPIKeys            = "GOOGLE_API_KEYS"
	envKeyAPIKey             = "GOOGLE_API_KEY"
	envKeySecretsFile        = "SECRETS_FILE"
	envKeyModel              = "GEMINI_MODEL"
	envKeySystemPrompt       = "SYSTEM_PROMPT"
	envKeySystemPromptFile   = "SYSTEM_PROMPT_FILE"
	envKeyAttachmentPrompt   = "ATTACHMENT_PROMPT"
	envKeySafetyThreshold    = "SAFETY_THRESHOLD"
	envKeyDBPath             = "DB_PATH"
	envKeyListenAddr         = "LISTEN_ADDR"
	envKeyRetryBackoff       = "RETRY_BACKOFF"
	envKeyAttemptTimeout     = "ATTEMPT_TIMEOUT"
	envKeyUploadPollInterval = "UPLOAD_POLL_INTERVAL"
	envKeyTTSLanguage        = "TTS_LANGUAGE"
	envKeyTTSMaxChars        = "TTS_MAX_CHARS"
	envKeySpeechLanguage     = "SPEECH_LANGUAGE"
	envKeyAuthClientKey      = "AUTH_CLIENT_KEY"
	envKeyAuthClientSecret   = "AUTH_CLIENT_SECRET"
	envKeyJWTSecret          = "JWT_SECRET"
	envKeyRateLimit          = "RATE_LIMIT"
	envKeyDebug              = "DEBUG"

	DefaultSecretsFile = ".streamlit/secrets.toml"
)

// Load reads .env (if present) into the environment and builds the Config.
func Load() (Config, error) {
	_ = gotenv.Load()
	return FromEnv()
}

// FromEnv builds the Config from the current environment without touching
// .env files.
func FromEnv() (Config, error) {
	cfg := Config{
		Model:            envOr(envKeyModel, "gemini-2.5-flash"),
		AttachmentPrompt: os.Getenv(envKeyAttachmentPrompt),
		SafetyThreshold:  envOr(envKeySafetyThreshold, "BLOCK_NONE"),
		DBPath:           envOr(envKeyDBPath, "chat_history.db"),
		ListenAddr:       envOr(envKeyListenAddr, ":8080"),
		TTSLanguage:      envOr(envKeyTTSLanguage, "ro-RO"),
		SpeechLanguage:   envOr(envKeySpeechLanguage, "ro-RO"),
		AuthClientKey:    os.Getenv(envKeyAuthClientKey),
		AuthClientSecret: os.Getenv(envKeyAuthClientSecret),
		JWTSecret:        os.Getenv(envKeyJWTSecret),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.RetryBackoff, err = durationOr(envKeyRetryBackoff, 2*time.Second)
	collect(err)
	cfg.AttemptTimeout, err = durationOr(envKeyAttemptTimeout, 0)
	collect(err)
	cfg.UploadPollInterval, err = durationOr(envKeyUploadPollInterval, time.Second)
	collect(err)
	cfg.TTSMaxChars, err = intOr(envKeyTTSMaxChars, 500)
	collect(err)
	cfg.RateLimit, err = intOr(envKeyRateLimit, 20)
	collect(err)
	cfg.Debug, err = boolOr(envKeyDebug, false)
	collect(err)

	cfg.SystemPrompt, err = systemPrompt()
	collect(err)

	secrets, err := secretCredentials(envOr(envKeySecretsFile, DefaultSecretsFile))
	collect(err)
	cfg.Credentials = append(secrets, envCredentials()...)

	if cfg.AuthClientKey != "" && cfg.JWTSecret == "" {
		collect(fmt.Errorf("%s is required when %s is set", envKeyJWTSecret, envKeyAuthClientKey))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return cfg, nil
}

// CredentialPool builds the pool from the configured credentials followed
// by any entered manually (the --api-key flag).
func (c Config) CredentialPool(manual ...string) (*domain.CredentialPool, error) {
	keys := append([]string(nil), c.Credentials...)
	keys = append(keys, domain.ParseCredentials(manual)...)
	return domain.NewCredentialPool(keys)
}

// AuthEnabled reports whether API routes require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.AuthClientKey != ""
}

func envCredentials() []string {
	if v := os.Getenv(envKeyAPIKeys); v != "" {
		return domain.ParseCredentials(v)
	}
	if v := os.Getenv(envKeyAPIKey); v != "" {
		return domain.ParseCredentials(v)
	}
	return nil
}

// secretCredentials reads GOOGLE_API_KEYS, else GOOGLE_API_KEY, from a TOML
// secrets file. A missing file yields nothing.
func secretCredentials(path string) ([]string, error) {
	var secrets map[string]any
	if _, err := toml.DecodeFile(path, &secrets); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	if v, ok := secrets[envKeyAPIKeys]; ok {
		return domain.ParseCredentials(v), nil
	}
	if v, ok := secrets[envKeyAPIKey]; ok {
		return domain.ParseCredentials(v), nil
	}
	return nil, nil
}

func systemPrompt() (string, error) {
	if v := os.Getenv(envKeySystemPrompt); v != "" {
		return v, nil
	}
	if path := os.Getenv(envKeySystemPromptFile); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", envKeySystemPromptFile, err)
		}
		return string(b), nil
	}
	return defaultSystemPrompt, nil
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func intOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", key, v)
	}
	return n, nil
}

func boolOr(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
