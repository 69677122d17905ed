package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
// HTTP:
// - HTTP_ADDR: listen address (default: :8080)
//
// Media / storage:
// - MEDIA_DIR: root of the background/music cache (default: /data/media)
// - UPLOADS_DIR: finished videos (default: /data/uploads)
// - TEMP_DIR: per-job scratch files (default: /data/tmp)
// - STORE_PATH: sqlite content store (default: /data/storyreel.db)
// - CATALOG_FILE: YAML background category catalog (optional)
//
// Voice synthesis:
// - GOOGLE_TTS_CREDENTIALS: service-account JSON for Google Cloud TTS (optional)
// - GOOGLE_TTS_VOICE: voice name (default: en-US-Neural2-J)
// - SPEECH_API_URL: OpenAI-compatible speech endpoint (optional)
// - SPEECH_API_KEY, SPEECH_MODEL, SPEECH_VOICE
// - ELEVENLABS_API_KEY, ELEVENLABS_VOICE_ID (optional)
// - WHISPER_CMD: whisper CLI used to recover word timings (default: whisper)
//
// Providers:
// - PEXELS_API_KEY: stock footage search (optional)
// - TIKTOK_CLIENT_KEY, TIKTOK_CLIENT_SECRET: trending sound lookup (optional)
//
// Publishing:
// - YOUTUBE_CLIENT_SECRETS, YOUTUBE_TOKEN_FILE: upload finished videos (optional)
//
// Pipeline:
// - PIPELINE_MAX_CONCURRENT: concurrent encodes (default: number of CPUs)
// - PIPELINE_SWEEP_CRON: temp sweep schedule (default: "0 * * * *")
// - PIPELINE_GRACE_SECONDS: progress eviction grace (default: 5)
type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Media    MediaConfig    `json:"media"`
	Voice    VoiceConfig    `json:"voice"`
	Pexels   PexelsConfig   `json:"pexels"`
	TikTok   TikTokConfig   `json:"tiktok"`
	Publish  PublishConfig  `json:"publish"`
	Pipeline PipelineConfig `json:"pipeline"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

// MediaConfig holds filesystem layout for cached and produced media.
type MediaConfig struct {
	MediaDir    string `json:"media_dir"`
	UploadsDir  string `json:"uploads_dir"`
	TempDir     string `json:"temp_dir"`
	StorePath   string `json:"store_path"`
	CatalogFile string `json:"catalog_file"`
}

// VoiceConfig holds credentials for the TTS provider chain. Providers with
// empty credentials are skipped when the chain is assembled.
type VoiceConfig struct {
	GoogleCredentialsFile string `json:"google_credentials_file"`
	GoogleVoice           string `json:"google_voice"`
	SpeechAPIURL          string `json:"speech_api_url"`
	SpeechAPIKey          string `json:"speech_api_key"`
	SpeechModel           string `json:"speech_model"`
	SpeechVoice           string `json:"speech_voice"`
	ElevenLabsAPIKey      string `json:"elevenlabs_api_key"`
	ElevenLabsVoiceID     string `json:"elevenlabs_voice_id"`
	WhisperCmd            string `json:"whisper_cmd"`
}

type PexelsConfig struct {
	APIKey string `json:"api_key"`
}

type TikTokConfig struct {
	ClientKey    string `json:"client_key"`
	ClientSecret string `json:"client_secret"`
}

type PublishConfig struct {
	ClientSecretsFile string `json:"client_secrets_file"`
	TokenFile         string `json:"token_file"`
}

type PipelineConfig struct {
	MaxConcurrent int    `json:"max_concurrent"`
	SweepCronExpr string `json:"sweep_cron_expr"`
	GraceSeconds  int    `json:"grace_seconds"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Media: MediaConfig{
			MediaDir:    getEnvString("MEDIA_DIR", "/data/media"),
			UploadsDir:  getEnvString("UPLOADS_DIR", "/data/uploads"),
			TempDir:     getEnvString("TEMP_DIR", "/data/tmp"),
			StorePath:   getEnvString("STORE_PATH", "/data/storyreel.db"),
			CatalogFile: getEnvString("CATALOG_FILE", ""),
		},
		Voice: VoiceConfig{
			GoogleCredentialsFile: getEnvString("GOOGLE_TTS_CREDENTIALS", ""),
			GoogleVoice:           getEnvString("GOOGLE_TTS_VOICE", "en-US-Neural2-J"),
			SpeechAPIURL:          getEnvString("SPEECH_API_URL", ""),
			SpeechAPIKey:          getEnvString("SPEECH_API_KEY", ""),
			SpeechModel:           getEnvString("SPEECH_MODEL", "tts-1"),
			SpeechVoice:           getEnvString("SPEECH_VOICE", "onyx"),
			ElevenLabsAPIKey:      getEnvString("ELEVENLABS_API_KEY", ""),
			ElevenLabsVoiceID:     getEnvString("ELEVENLABS_VOICE_ID", ""),
			WhisperCmd:            getEnvString("WHISPER_CMD", "whisper"),
		},
		Pexels: PexelsConfig{
			APIKey: getEnvString("PEXELS_API_KEY", ""),
		},
		TikTok: TikTokConfig{
			ClientKey:    getEnvString("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnvString("TIKTOK_CLIENT_SECRET", ""),
		},
		Publish: PublishConfig{
			ClientSecretsFile: getEnvString("YOUTUBE_CLIENT_SECRETS", ""),
			TokenFile:         getEnvString("YOUTUBE_TOKEN_FILE", ""),
		},
		Pipeline: PipelineConfig{
			MaxConcurrent: getEnvInt("PIPELINE_MAX_CONCURRENT", 0),
			SweepCronExpr: getEnvString("PIPELINE_SWEEP_CRON", "0 * * * *"),
			GraceSeconds:  getEnvInt("PIPELINE_GRACE_SECONDS", 5),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Media.MediaDir == "" {
		return fmt.Errorf("MEDIA_DIR is required")
	}
	if c.Media.UploadsDir == "" {
		return fmt.Errorf("UPLOADS_DIR is required")
	}
	if c.Media.TempDir == "" {
		return fmt.Errorf("TEMP_DIR is required")
	}
	if c.Media.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	if c.Pipeline.GraceSeconds < 0 {
		return fmt.Errorf("PIPELINE_GRACE_SECONDS must be >= 0")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
