package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "HOST", "EXECUTOR_WORKERS", "EXECUTOR_QUEUE_SIZE", "FETCH_TIMEOUT",
	"FETCH_MAX_ATTEMPTS", "FETCH_BASE_BACKOFF", "FETCH_JITTER", "CACHE_CAPACITY", "CACHE_HASH",
	"INFERENCE_URL", "INFERENCE_TOKEN", "LOG_LEVEL", "LOG_DEV", "RATE_LIMIT_ENABLED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, v) })
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Executor.Workers)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Fetch.BaseBackoff)
	assert.Equal(t, 0.1, cfg.Fetch.JitterFraction)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 10, cfg.Cache.Capacity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	clearEnv(t)
	envVars := map[string]string{
		"PORT":               "9000",
		"EXECUTOR_WORKERS":   "8",
		"FETCH_TIMEOUT":      "3s",
		"FETCH_MAX_ATTEMPTS": "5",
		"FETCH_BASE_BACKOFF": "250ms",
		"FETCH_JITTER":       "0.25",
		"CACHE_CAPACITY":     "32",
		"INFERENCE_URL":      "http://localhost:9090",
		"INFERENCE_TOKEN":    "secret",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Executor.Workers)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.BaseBackoff)
	assert.Equal(t, 0.25, cfg.Fetch.JitterFraction)
	assert.Equal(t, 32, cfg.Cache.Capacity)
	assert.Equal(t, "http://localhost:9090", cfg.Inference.URL)
	assert.Equal(t, "secret", cfg.Inference.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"EXECUTOR_WORKERS", "0"},
		{"FETCH_MAX_ATTEMPTS", "0"},
		{"FETCH_JITTER", "1.5"},
		{"CACHE_CAPACITY", "0"},
		{"CACHE_HASH", "md5"},
		{"FETCH_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}

func TestParseOperations(t *testing.T) {
	data := []byte(`
operations:
  - name: sentiment_analysis
    model: cardiffnlp/twitter-roberta-base-sentiment
    input: text
  - name: object_detection
    model: facebook/detr-resnet-50
    input: image
    description: Detect objects in an image
  - name: table_question_answering
    model: google/tapas-base-finetuned-wtq
    required: [question]
`)

	ops, err := ParseOperations(data)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "sentiment_analysis", ops[0].Name)
	assert.Empty(t, ops[0].Required)
	assert.Equal(t, "image", ops[1].Input)
	assert.Equal(t, "Detect objects in an image", ops[1].Description)
	assert.Equal(t, []string{"question"}, ops[2].Required)
}

func TestParseOperationsErrors(t *testing.T) {
	tests := map[string]string{
		"missing name":   "operations:\n  - model: gpt2\n",
		"missing model":  "operations:\n  - name: text_generation\n",
		"bad input":      "operations:\n  - name: x\n    model: m\n    input: audio\n",
		"empty required": "operations:\n  - name: x\n    model: m\n    required: [\"\"]\n",
		"duplicate":      "operations:\n  - name: x\n    model: m\n  - name: x\n    model: n\n",
		"not yaml":       "operations: [",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOperations([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadOperationsFile(t *testing.T) {
	ops, err := LoadOperations("")
	require.NoError(t, err)
	assert.Nil(t, ops)

	path := filepath.Join(t.TempDir(), "ops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("operations:\n  - name: text_generation\n    model: gpt2\n"), 0o600))

	ops, err = LoadOperations(path)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "gpt2", ops[0].Model)

	_, err = LoadOperations(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
