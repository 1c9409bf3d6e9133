package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/linguaforge/server/adapters/tts"
	"github.com/linguaforge/server/adapters/tutor"
	"github.com/linguaforge/server/domain/repositories"
)

// Storage drivers
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageMongo  = "mongo"
	StorageRedis  = "redis"
)

// Provider selections
const (
	ProviderMock       = "mock"
	ProviderNone       = "none"
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
	ProviderGemini     = "gemini"
)

// Config holds application configuration
type Config struct {
	Port   string
	AppEnv string

	StorageDriver string
	StorageKey    string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	LessonsFile   string

	SpeechInput  string
	SpeechOutput string
	Tutor        string

	Gemini     tutor.GeminiConfig
	ElevenLabs tts.ElevenLabsConfig

	LearningLanguage   string
	TutorVoiceLanguage string
	AnalysisTimeout    time.Duration
	PracticeXP         int

	TutorDelay   time.Duration
	PaymentDelay time.Duration
}

// IsProduction reports whether APP_ENV selects production logging
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file and then the environment. Malformed values
// are reported instead of silently replaced by defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	r := &reader{}
	cfg := &Config{
		Port:   r.str("PORT", "8080"),
		AppEnv: r.str("APP_ENV", "development"),

		StorageDriver: r.oneOf("STORAGE_DRIVER", StorageMemory, StorageMemory, StorageSQLite, StorageMongo, StorageRedis),
		StorageKey:    r.str("STORAGE_KEY", repositories.DefaultStorageKey),
		SQLitePath:    r.str("SQLITE_PATH", "./linguaforge.db"),
		MongoURI:      r.str("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: r.str("MONGODB_DATABASE", "linguaforge"),
		RedisAddr:     r.str("REDIS_ADDR", "localhost:6379"),
		LessonsFile:   r.str("LESSONS_FILE", ""),

		SpeechInput:  r.oneOf("SPEECH_INPUT", ProviderMock, ProviderMock, ProviderGoogle, ProviderNone),
		SpeechOutput: r.oneOf("SPEECH_OUTPUT", ProviderMock, ProviderMock, ProviderElevenLabs, ProviderNone),
		Tutor:        r.oneOf("TUTOR_PROVIDER", ProviderMock, ProviderMock, ProviderGemini),

		LearningLanguage:   r.str("LEARNING_LANGUAGE", "es-ES"),
		TutorVoiceLanguage: r.str("TUTOR_VOICE_LANGUAGE", "en-US"),
		AnalysisTimeout:    r.duration("ANALYSIS_TIMEOUT", 30*time.Second),
		PracticeXP:         r.integer("PRACTICE_XP", 2),

		TutorDelay:   r.duration("TUTOR_DELAY", time.Second),
		PaymentDelay: r.duration("PAYMENT_DELAY", 2*time.Second),
	}

	cfg.Gemini = tutor.GeminiConfig{
		APIKey:   r.str("GEMINI_API_KEY", ""),
		Model:    r.str("GEMINI_MODEL", ""),
		Language: cfg.LearningLanguage,
	}
	cfg.ElevenLabs = tts.ElevenLabsConfig{
		APIKey:       r.str("ELEVEN_LABS_API_KEY", ""),
		APIBaseURL:   r.str("ELEVEN_LABS_API_BASE_URL", ""),
		VoiceID:      r.str("ELEVEN_LABS_VOICE_ID", ""),
		ModelID:      r.str("ELEVEN_LABS_MODEL_ID", ""),
		OutputFormat: r.str("ELEVEN_LABS_OUTPUT_FORMAT", ""),
		ChunkSize:    r.integer("ELEVEN_LABS_CHUNK_SIZE", 0),
		Stability:    r.float("ELEVEN_LABS_STABILITY", 0),
		Clarity:      r.float("ELEVEN_LABS_CLARITY", 0),
	}

	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive, got %s", c.AnalysisTimeout)
	}
	if c.PracticeXP < 0 {
		return fmt.Errorf("PRACTICE_XP must not be negative, got %d", c.PracticeXP)
	}
	if c.TutorDelay < 0 || c.PaymentDelay < 0 {
		return fmt.Errorf("TUTOR_DELAY and PAYMENT_DELAY must not be negative")
	}
	if c.Tutor == ProviderGemini {
		if err := tutor.ValidateGeminiConfig(c.Gemini); err != nil {
			return fmt.Errorf("invalid gemini configuration: %w", err)
		}
	}
	if c.SpeechOutput == ProviderElevenLabs {
		if err := tts.ValidateElevenLabsConfig(c.ElevenLabs); err != nil {
			return fmt.Errorf("invalid eleven labs configuration: %w", err)
		}
	}
	return nil
}

// reader keeps the first parse error so Load can report it once.
type reader struct {
	err error
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (r *reader) str(key, def string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return def
}

func (r *reader) oneOf(key, def string, allowed ...string) string {
	value := r.str(key, def)
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	r.fail(key, value, fmt.Errorf("must be one of %v", allowed))
	return def
}

func (r *reader) integer(key string, def int) int {
	value := r.str(key, "")
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	value := r.str(key, "")
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	value := r.str(key, "")
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return d
}
