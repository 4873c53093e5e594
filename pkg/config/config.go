// Package config holds harness configuration loaded from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// QueueConfig controls how events are polled, claimed, and retried.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines competing for events.
	WorkerCount int

	// WorkerSleep is the base interval between worker poll cycles.
	WorkerSleep time.Duration

	// MinJitter and MaxJitter bound the random offset added to WorkerSleep
	// each cycle. MinJitter may be negative; MaxJitter must exceed MinJitter
	// and WorkerSleep+MinJitter must stay positive.
	MinJitter time.Duration
	MaxJitter time.Duration

	// MaxAttempts is the retry cap per event. Once an event has been claimed
	// this many times it is no longer eligible and the sweeper retires it.
	MaxAttempts int

	// MaxAge is the absolute age limit; older events are swept to history.
	MaxAge time.Duration

	// Lease is how long a claimed event stays invisible to other workers.
	Lease time.Duration
}

// Validate checks the invariants the worker loop depends on.
func (c *QueueConfig) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.WorkerCount)
	}
	if c.WorkerSleep <= 0 {
		return fmt.Errorf("worker sleep must be positive, got %v", c.WorkerSleep)
	}
	if c.MinJitter >= c.MaxJitter {
		return fmt.Errorf("min jitter %v must be less than max jitter %v", c.MinJitter, c.MaxJitter)
	}
	if c.WorkerSleep+c.MinJitter <= 0 {
		return fmt.Errorf("worker sleep %v plus min jitter %v must be positive", c.WorkerSleep, c.MinJitter)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("max age must be positive, got %v", c.MaxAge)
	}
	if c.Lease <= 0 {
		return fmt.Errorf("lease must be positive, got %v", c.Lease)
	}
	return nil
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount: 5,
		WorkerSleep: 60 * time.Second,
		MinJitter:   -15 * time.Second,
		MaxJitter:   15 * time.Second,
		MaxAttempts: 3,
		MaxAge:      60 * time.Minute,
		Lease:       10 * time.Minute,
	}
}

// SlackConfig holds Slack credentials and ingress routing configuration.
type SlackConfig struct {
	// BotToken is the xoxb- token used for Web API calls.
	BotToken string

	// AppToken is the xapp- token used for the Socket Mode connection.
	AppToken string

	// ProactiveChannels is the set of channel IDs where non-mention messages
	// get an opt-in prompt instead of being queued directly.
	ProactiveChannels map[string]struct{}
}

// Validate ensures both tokens are present.
func (c *SlackConfig) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("no SLACK_BOT_TOKEN found")
	}
	if c.AppToken == "" {
		return fmt.Errorf("no SLACK_APP_TOKEN found")
	}
	return nil
}

// IsProactiveChannel reports whether channelID is configured for
// proactive prompts.
func (c *SlackConfig) IsProactiveChannel(channelID string) bool {
	_, ok := c.ProactiveChannels[channelID]
	return ok
}

// RateLimitConfig bounds per-user request volume. AllowedRequests of zero
// disables rate limiting.
type RateLimitConfig struct {
	AllowedRequests int
	Interval        time.Duration
}

// Config is the full harness configuration.
type Config struct {
	Queue     QueueConfig
	Slack     SlackConfig
	RateLimit RateLimitConfig

	// HTTPAddr enables the health API when non-empty, e.g. ":8080".
	HTTPAddr string
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}
	if err := c.Slack.Validate(); err != nil {
		return fmt.Errorf("slack config: %w", err)
	}
	return nil
}

// LoadFromEnv builds a Config from environment variables, applying defaults
// for anything unset. It does not validate; call Validate after any
// programmatic overrides.
func LoadFromEnv() (*Config, error) {
	q := DefaultQueueConfig()

	var err error
	if q.WorkerCount, err = envInt("NUM_WORKERS", q.WorkerCount); err != nil {
		return nil, err
	}
	if q.WorkerSleep, err = envSeconds("WORKER_SLEEP_SECONDS", q.WorkerSleep); err != nil {
		return nil, err
	}
	if q.MinJitter, err = envSeconds("WORKER_MIN_JITTER_SECONDS", q.MinJitter); err != nil {
		return nil, err
	}
	if q.MaxJitter, err = envSeconds("WORKER_MAX_JITTER_SECONDS", q.MaxJitter); err != nil {
		return nil, err
	}
	if q.MaxAttempts, err = envInt("MAX_ATTEMPTS", q.MaxAttempts); err != nil {
		return nil, err
	}
	if q.MaxAge, err = envMinutes("MAX_AGE_MINUTES", q.MaxAge); err != nil {
		return nil, err
	}
	if q.Lease, err = envMinutes("INVISIBILITY_MINUTES", q.Lease); err != nil {
		return nil, err
	}

	allowed, err := envInt("RATE_LIMIT_ALLOWED_REQUESTS", 0)
	if err != nil {
		return nil, err
	}
	interval, err := envMinutes("RATE_LIMIT_INTERVAL_MINUTES", time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		Queue: *q,
		Slack: SlackConfig{
			BotToken:          os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:          os.Getenv("SLACK_APP_TOKEN"),
			ProactiveChannels: parseChannelSet(os.Getenv("PROACTIVE_PROMPT_CHANNELS")),
		},
		RateLimit: RateLimitConfig{
			AllowedRequests: allowed,
			Interval:        interval,
		},
		HTTPAddr: os.Getenv("HTTP_ADDR"),
	}, nil
}

// parseChannelSet splits a comma-separated channel list into a set.
func parseChannelSet(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func envInt(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	v, err := envInt(key, int(defaultVal/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

func envMinutes(key string, defaultVal time.Duration) (time.Duration, error) {
	v, err := envInt(key, int(defaultVal/time.Minute))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Minute, nil
}
