package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	// Voice provider configuration
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string // override for tests; empty means the public API

	// Shared public agent used when a job has no dedicated agent, the
	// signed-URL exchange fails, or a legacy interview has no job at all.
	DefaultAgentID string

	// Defaults applied when a job does not override them
	DefaultVoiceID  string
	DefaultLanguage string

	// Outbound call budgets
	ProvisionTimeout  time.Duration
	CredentialTimeout time.Duration
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
		log.Println("Warning: Could not load .env file, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	}

	language := os.Getenv("ELEVENLABS_LANGUAGE")
	if language == "" {
		language = "en"
	}

	return &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              port,
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: os.Getenv("ELEVENLABS_BASE_URL"),
		DefaultAgentID:    os.Getenv("ELEVENLABS_DEFAULT_AGENT_ID"),
		DefaultVoiceID:    voiceID,
		DefaultLanguage:   language,
		ProvisionTimeout:  durationFromEnv("PROVISION_TIMEOUT_SECONDS", 15*time.Second),
		CredentialTimeout: durationFromEnv("CREDENTIAL_TIMEOUT_SECONDS", 4*time.Second),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		log.Printf("Warning: invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(secs) * time.Second
}
