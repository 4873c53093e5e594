package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 60*time.Second, cfg.WorkerSleep)
	assert.Equal(t, -15*time.Second, cfg.MinJitter)
	assert.Equal(t, 15*time.Second, cfg.MaxJitter)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 60*time.Minute, cfg.MaxAge)
	assert.Equal(t, 10*time.Minute, cfg.Lease)
}

func TestQueueConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*QueueConfig)
		wantErr string
	}{
		{"valid", func(c *QueueConfig) {}, ""},
		{"zero workers", func(c *QueueConfig) { c.WorkerCount = 0 }, "worker count"},
		{"zero sleep", func(c *QueueConfig) { c.WorkerSleep = 0 }, "worker sleep"},
		{"inverted jitter", func(c *QueueConfig) { c.MinJitter, c.MaxJitter = 10*time.Second, -10*time.Second }, "jitter"},
		{"sleep swallowed by jitter", func(c *QueueConfig) { c.MinJitter = -2 * time.Minute }, "must be positive"},
		{"zero attempts", func(c *QueueConfig) { c.MaxAttempts = 0 }, "max attempts"},
		{"zero age", func(c *QueueConfig) { c.MaxAge = 0 }, "max age"},
		{"zero lease", func(c *QueueConfig) { c.Lease = 0 }, "lease"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultQueueConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "xapp-test")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, *DefaultQueueConfig(), cfg.Queue)
	assert.Empty(t, cfg.Slack.ProactiveChannels)
	assert.Zero(t, cfg.RateLimit.AllowedRequests)
	assert.Empty(t, cfg.HTTPAddr)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "xapp-test")
	t.Setenv("NUM_WORKERS", "8")
	t.Setenv("WORKER_SLEEP_SECONDS", "30")
	t.Setenv("WORKER_MIN_JITTER_SECONDS", "-5")
	t.Setenv("WORKER_MAX_JITTER_SECONDS", "5")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("MAX_AGE_MINUTES", "120")
	t.Setenv("INVISIBILITY_MINUTES", "2")
	t.Setenv("PROACTIVE_PROMPT_CHANNELS", "C1, C2,C3")
	t.Setenv("RATE_LIMIT_ALLOWED_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_INTERVAL_MINUTES", "15")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8, cfg.Queue.WorkerCount)
	assert.Equal(t, 30*time.Second, cfg.Queue.WorkerSleep)
	assert.Equal(t, -5*time.Second, cfg.Queue.MinJitter)
	assert.Equal(t, 5*time.Second, cfg.Queue.MaxJitter)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 120*time.Minute, cfg.Queue.MaxAge)
	assert.Equal(t, 2*time.Minute, cfg.Queue.Lease)

	assert.True(t, cfg.Slack.IsProactiveChannel("C1"))
	assert.True(t, cfg.Slack.IsProactiveChannel("C2"))
	assert.True(t, cfg.Slack.IsProactiveChannel("C3"))
	assert.False(t, cfg.Slack.IsProactiveChannel("C4"))

	assert.Equal(t, 10, cfg.RateLimit.AllowedRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Interval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoadFromEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("NUM_WORKERS", "lots")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NUM_WORKERS")
}

func TestConfigValidateRequiresTokens(t *testing.T) {
	cfg := &Config{Queue: *DefaultQueueConfig()}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_BOT_TOKEN")

	cfg.Slack.BotToken = "xoxb-test"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_APP_TOKEN")

	cfg.Slack.AppToken = "xapp-test"
	assert.NoError(t, cfg.Validate())
}
