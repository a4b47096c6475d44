// Package voicelive is a concrete, runnable bridge.Session implementation
// against a remote realtime conversational service, connected over a
// websocket and framed with JSON events mirroring the session/response
// event taxonomy of pkg/bridge. It is the "session-side collaborator"
// pkg/bridge deliberately keeps out of its own scope.
package voicelive

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the connection and session parameters for a voicelive
// client, sourced from environment variables per
// original_source/VoiceLiveConfig.java.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Voice    string

	Instructions          string
	TranscriptionModel    string
	TranscriptionLanguage string
	APIVersion            string

	// MaxResponseOutputTokens is omitted from the outgoing session
	// payload unless explicitly set, per spec Open Question 3.
	MaxResponseOutputTokens *int

	ProactiveGreetingEnabled bool
	ProactiveGreeting        string
}

const (
	defaultInstructions = "You are a helpful AI voice assistant. Keep responses VERY brief and concise. " +
		"Answer in 1-2 sentences maximum. You MUST always respond in English only, regardless of the " +
		"language spoken by the user."
	defaultTranscriptionModel    = "reference_asr"
	defaultTranscriptionLanguage = "en-US"
	defaultAPIVersion            = "2025-10-01"
	defaultProactiveGreeting     = "Hello! How can I help you today?"
)

// ConfigFromEnv builds a Config from the VOICE_LIVE_* environment
// variables, matching original_source/VoiceLiveConfig.java's variable
// names and defaults.
func ConfigFromEnv() (Config, error) {
	endpoint, err := requireEnv("VOICE_LIVE_ENDPOINT")
	if err != nil {
		return Config{}, err
	}
	apiKey, err := requireEnv("VOICE_LIVE_API_KEY")
	if err != nil {
		return Config{}, err
	}
	model, err := requireEnv("VOICE_LIVE_MODEL")
	if err != nil {
		return Config{}, err
	}
	voice, err := requireEnv("VOICE_LIVE_VOICE")
	if err != nil {
		return Config{}, err
	}

	if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "wss://") {
		return Config{}, fmt.Errorf("voicelive: VOICE_LIVE_ENDPOINT must start with https:// or wss://")
	}

	cfg := Config{
		Endpoint:                 endpoint,
		APIKey:                   apiKey,
		Model:                    model,
		Voice:                    voice,
		Instructions:             envOrDefault("VOICE_LIVE_INSTRUCTIONS", defaultInstructions),
		TranscriptionModel:       envOrDefault("VOICE_LIVE_TRANSCRIPTION_MODEL", defaultTranscriptionModel),
		TranscriptionLanguage:    envOrDefault("VOICE_LIVE_TRANSCRIPTION_LANGUAGE", defaultTranscriptionLanguage),
		APIVersion:               envOrDefault("VOICE_LIVE_API_VERSION", defaultAPIVersion),
		ProactiveGreetingEnabled: envOrDefault("VOICE_LIVE_PROACTIVE_GREETING_ENABLED", "true") == "true",
		ProactiveGreeting:        envOrDefault("VOICE_LIVE_PROACTIVE_GREETING", defaultProactiveGreeting),
	}

	if raw := os.Getenv("VOICE_LIVE_MAX_RESPONSE_OUTPUT_TOKENS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("voicelive: invalid VOICE_LIVE_MAX_RESPONSE_OUTPUT_TOKENS: %w", err)
		}
		cfg.MaxResponseOutputTokens = &n
	}

	return cfg, nil
}

// WebSocketURL builds the voice-live realtime endpoint URL, per
// VoiceLiveConfig.java's buildWebSocketUrl.
func (c Config) WebSocketURL() string {
	base := c.Endpoint
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	base = strings.TrimSuffix(base, "/")
	return fmt.Sprintf("%s/voice-live/realtime?api-version=%s&model=%s", base, c.APIVersion, c.Model)
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("voicelive: environment variable %s is required but not set", key)
	}
	return v, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
