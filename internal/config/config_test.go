package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"DATABASE_URL": "postgres://x"}))
	require.NoError(t, err)

	assert.Equal(t, "postgres://x", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"SERVER_PORT":  "9090",
		"LOCK_TIMEOUT": "750ms",
		"LOG_FORMAT":   "console",
		"LOG_LEVEL":    "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromLookup_RejectsBadValues(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{"LOCK_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "invalid LOCK_TIMEOUT")

	_, err = FromLookup(lookupFrom(map[string]string{"LOCK_TIMEOUT": "-1s"}))
	assert.ErrorContains(t, err, "must be positive")

	_, err = FromLookup(lookupFrom(map[string]string{"LOG_FORMAT": "xml"}))
	assert.ErrorContains(t, err, "invalid LOG_FORMAT")
}
