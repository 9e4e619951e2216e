package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"SERVER_URL", "JWT_SIGNING_KEY", "TOKEN_TTL", "MONGODB_URI", "DB_NAME", "REDIS_URL",
	"RABBITMQ_URL", "NUM_PUSH_PRODUCERS", "NUM_PUSH_CONSUMERS", "EXPO_HOST",
	"EXPO_ACCESS_TOKEN", "PUSH_TIMEOUT", "REMINDER_SCHEDULE", "STRICT_OWNER_READS",
}

// clearEnv unsets every key and restores the previous values when the test ends.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SIGNING_KEY", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, "goalpal", cfg.DBName)
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.PushTimeout)
	assert.Equal(t, 1, cfg.NumPushProducers)
	assert.Equal(t, 2, cfg.NumPushConsumers)
	assert.Empty(t, cfg.MongoURI)
	assert.False(t, cfg.StrictOwnerReads)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_NAME", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	content := "JWT_SIGNING_KEY=file-key\nDB_NAME=from-file\nPUSH_TIMEOUT=3s\nSTRICT_OWNER_READS=true\nNUM_PUSH_CONSUMERS=4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.SigningKey)
	assert.Equal(t, "from-env", cfg.DBName, "the environment wins over the file")
	assert.Equal(t, 3*time.Second, cfg.PushTimeout)
	assert.True(t, cfg.StrictOwnerReads)
	assert.Equal(t, 4, cfg.NumPushConsumers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"TOKEN_TTL":          "forever",
		"NUM_PUSH_PRODUCERS": "-1",
		"STRICT_OWNER_READS": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SIGNING_KEY", "secret")
			t.Setenv(key, value)

			_, err := Load("")
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadRequiresSigningKey(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err)
}
