package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults shared with the onboarding flow. The voice id is the provider's
// stock voice used until a creator trains their own clone.
const (
	DefaultMessageTemplate = "Hi {name}! Welcome to our community. We're excited to have you here!"
	DefaultVoiceID         = "1bd001e7e50f421d891986aad5158bc8"
)

// AppConfig holds all runtime configuration for the welcome-video service.
type AppConfig struct {
	Port    string
	BaseURL string // public base URL used to build upload links

	// HeyGen (avatar video generation)
	HeyGenAPIKey        string
	HeyGenAPIBase       string
	HeyGenUploadBase    string
	HeyGenWebhookSecret string

	// HeyGenRegisterWebhook registers BaseURL + /api/heygen/webhook with the
	// provider on startup. BaseURL must be publicly reachable.
	HeyGenRegisterWebhook bool

	// Fish Audio (voice cloning / TTS)
	FishAudioAPIKey  string
	FishAudioAPIBase string

	// Whop (host platform)
	WhopAPIKey        string
	WhopAPIBase       string
	WhopAppPublicKey  string // PEM, verifies user-token JWTs locally
	WhopWebhookSecret string

	// Uploads
	UploadDir         string
	UploadStorageType string // "local" or "gcs"
	UploadGCSBucket   string

	// Reconciliation poller
	PollInterval time.Duration

	// Redis (optional, used for token-verification caching)
	RedisHost     string
	RedisPort     string
	RedisPassword string
}

// LoadFromEnv populates AppConfig from environment variables with sensible
// defaults for local development.
func LoadFromEnv() *AppConfig {
	return &AppConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		BaseURL: getEnvOrDefault("APP_BASE_URL", "http://localhost:8080"),

		HeyGenAPIKey:        getEnvOrDefault("HEYGEN_API_KEY", ""),
		HeyGenAPIBase:       getEnvOrDefault("HEYGEN_API_BASE", "https://api.heygen.com"),
		HeyGenUploadBase:    getEnvOrDefault("HEYGEN_UPLOAD_BASE", "https://upload.heygen.com"),
		HeyGenWebhookSecret: getEnvOrDefault("HEYGEN_WEBHOOK_SECRET", ""),

		HeyGenRegisterWebhook: getEnvAsBoolOrDefault("HEYGEN_REGISTER_WEBHOOK", false),

		FishAudioAPIKey:  getEnvOrDefault("FISH_AUDIO_API_KEY", ""),
		FishAudioAPIBase: getEnvOrDefault("FISH_AUDIO_API_BASE", "https://api.fish.audio"),

		WhopAPIKey:        getEnvOrDefault("WHOP_API_KEY", ""),
		WhopAPIBase:       getEnvOrDefault("WHOP_API_BASE", "https://api.whop.com"),
		WhopAppPublicKey:  getEnvOrDefault("WHOP_APP_PUBLIC_KEY", ""),
		WhopWebhookSecret: getEnvOrDefault("WHOP_WEBHOOK_SECRET", ""),

		UploadDir:         getEnvOrDefault("UPLOAD_DIR", "uploads/avatars"),
		UploadStorageType: getEnvOrDefault("UPLOAD_STORAGE_TYPE", "local"),
		UploadGCSBucket:   getEnvOrDefault("UPLOAD_GCS_BUCKET", ""),

		PollInterval: time.Duration(getEnvAsIntOrDefault("POLL_INTERVAL_SECONDS", 30)) * time.Second,

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
	}
}

// getEnvOrDefault gets environment variable or returns default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default.
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default.
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
