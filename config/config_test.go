package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roberta039/Gym-Trainer/domain"
)

// cleanEnv blanks every key the loader reads and points the secrets file at
// a path inside a temp dir.
func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		envKeyAPIKeys, envKeyAPIKey, envKeyModel, envKeySystemPrompt, envKeySystemPromptFile,
		envKeyAttachmentPrompt, envKeySafetyThreshold, envKeyDBPath, envKeyListenAddr,
		envKeyRetryBackoff, envKeyAttemptTimeout, envKeyUploadPollInterval, envKeyTTSLanguage,
		envKeyTTSMaxChars, envKeySpeechLanguage, envKeyAuthClientKey, envKeyAuthClientSecret,
		envKeyJWTSecret, envKeyRateLimit, envKeyDebug,
	} {
		t.Setenv(k, "")
	}
	secrets := filepath.Join(t.TempDir(), "secrets.toml")
	t.Setenv(envKeySecretsFile, secrets)
	return secrets
}

func TestFromEnv_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, "BLOCK_NONE", cfg.SafetyThreshold)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.Zero(t, cfg.AttemptTimeout)
	assert.Equal(t, time.Second, cfg.UploadPollInterval)
	assert.Equal(t, 500, cfg.TTSMaxChars)
	assert.Equal(t, "ro-RO", cfg.TTSLanguage)
	assert.Contains(t, cfg.SystemPrompt, "GymBro AI")
	assert.False(t, cfg.AuthEnabled())
	assert.Empty(t, cfg.Credentials)
}

func TestFromEnv_CredentialSourcesInOrder(t *testing.T) {
	secrets := cleanEnv(t)
	require.NoError(t, os.WriteFile(secrets, []byte(`GOOGLE_API_KEYS = ["s1", " 's2' "]`+"\n"), 0o600))
	t.Setenv(envKeyAPIKeys, `["e1", "s1"]`)
	t.Setenv(envKeyAPIKey, "ignored-when-list-set")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "e1", "s1"}, cfg.Credentials)

	pool, err := cfg.CredentialPool("m1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 4, pool.Len())
	_, key := pool.Current()
	assert.Equal(t, "s1", key)
}

func TestFromEnv_SingleKeyFallbacks(t *testing.T) {
	secrets := cleanEnv(t)
	require.NoError(t, os.WriteFile(secrets, []byte(`GOOGLE_API_KEY = "solo"`+"\n"), 0o600))
	t.Setenv(envKeyAPIKey, `"quoted"`)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"solo", "quoted"}, cfg.Credentials)
}

func TestCredentialPool_EmptyIsConfigurationError(t *testing.T) {
	cleanEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	_, err = cfg.CredentialPool()
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	pool, err := cfg.CredentialPool("typed-in")
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Len())
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{envKeyRetryBackoff, "soon"},
		{envKeyAttemptTimeout, "-1s"},
		{envKeyTTSMaxChars, "0"},
		{envKeyRateLimit, "many"},
		{envKeyDebug, "maybe"},
		{envKeySystemPromptFile, "/does/not/exist.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			require.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestFromEnv_MalformedSecretsFile(t *testing.T) {
	secrets := cleanEnv(t)
	require.NoError(t, os.WriteFile(secrets, []byte("GOOGLE_API_KEYS = [\n"), 0o600))

	_, err := FromEnv()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestFromEnv_AuthRequiresJWTSecret(t *testing.T) {
	cleanEnv(t)
	t.Setenv(envKeyAuthClientKey, "esp32")

	_, err := FromEnv()
	require.ErrorIs(t, err, domain.ErrConfiguration)

	t.Setenv(envKeyJWTSecret, "s3cret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.AuthEnabled())
}

func TestFromEnv_SystemPromptFromFile(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("You are a coach."), 0o600))
	t.Setenv(envKeySystemPromptFile, path)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "You are a coach.", cfg.SystemPrompt)
}
