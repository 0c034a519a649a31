// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	PublicBaseURL string
	RedisAddr     string
	PersonaDir    string

	Telephony  TelephonyConfig
	Limits     LimitsConfig
	Resilience ResilienceConfig
	Completion CompletionConfig
	Enrichment EnrichmentConfig
}

// TelephonyConfig controls inbound callback authentication.
type TelephonyConfig struct {
	AuthToken      string
	ValidationMode string // "strict" or "permissive"
}

// LimitsConfig bounds conversation size and daily usage.
type LimitsConfig struct {
	DailyTurnLimit          int64
	ConversationTTL         time.Duration
	RateLimitWindowTTL      time.Duration
	MaxHistoryMessages      int
	MaxMessageContentLength int
}

// ResilienceConfig tunes the retry and circuit-breaker layers.
type ResilienceConfig struct {
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration
}

// CompletionConfig points at the completion service.
type CompletionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// EnrichmentConfig points at the analytics platform's transcript API.
// An empty base URL disables enrichment.
type EnrichmentConfig struct {
	BaseURL string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		PersonaDir:    getEnv("PERSONA_DIR", "./personas"),
		Telephony: TelephonyConfig{
			AuthToken:      getEnv("TELEPHONY_AUTH_TOKEN", ""),
			ValidationMode: strings.ToLower(getEnv("SIGNATURE_VALIDATION_MODE", "permissive")),
		},
		Limits: LimitsConfig{
			DailyTurnLimit:          int64(getEnvInt("DAILY_TURN_LIMIT", 1000)),
			ConversationTTL:         getEnvSeconds("CONVERSATION_TTL_SECONDS", 24*time.Hour),
			RateLimitWindowTTL:      getEnvSeconds("RATE_LIMIT_WINDOW_TTL_SECONDS", 48*time.Hour),
			MaxHistoryMessages:      getEnvInt("MAX_HISTORY_MESSAGES", 20),
			MaxMessageContentLength: getEnvInt("MAX_MESSAGE_CONTENT_LENGTH", 2000),
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:        getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:          getEnvMillis("RETRY_BASE_DELAY_MS", time.Second),
			RetryMaxDelay:           getEnvMillis("RETRY_MAX_DELAY_MS", 10*time.Second),
			BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 3),
			BreakerResetTimeout:     getEnvMillis("BREAKER_RESET_TIMEOUT_MS", 30*time.Second),
		},
		Completion: CompletionConfig{
			APIKey:  getEnv("COMPLETION_API_KEY", ""),
			BaseURL: getEnv("COMPLETION_BASE_URL", ""),
			Model:   getEnv("COMPLETION_MODEL", ""),
		},
		Enrichment: EnrichmentConfig{
			BaseURL: getEnv("ENRICHMENT_BASE_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Telephony.AuthToken == "" {
		return fmt.Errorf("TELEPHONY_AUTH_TOKEN cannot be empty")
	}
	if c.Telephony.ValidationMode != "strict" && c.Telephony.ValidationMode != "permissive" {
		return fmt.Errorf("SIGNATURE_VALIDATION_MODE must be strict or permissive")
	}
	if c.Limits.DailyTurnLimit <= 0 {
		return fmt.Errorf("DAILY_TURN_LIMIT must be > 0")
	}
	if c.Limits.ConversationTTL <= 0 {
		return fmt.Errorf("CONVERSATION_TTL_SECONDS must be > 0")
	}
	if c.Resilience.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be > 0")
	}
	if c.Resilience.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be > 0")
	}
	if c.PersonaDir == "" {
		return fmt.Errorf("PERSONA_DIR cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
