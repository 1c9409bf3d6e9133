package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "APP_ENV", "STORAGE_DRIVER", "STORAGE_KEY", "SQLITE_PATH",
		"SPEECH_INPUT", "SPEECH_OUTPUT", "TUTOR_PROVIDER", "LEARNING_LANGUAGE",
		"TUTOR_VOICE_LANGUAGE", "ANALYSIS_TIMEOUT", "PRACTICE_XP", "TUTOR_DELAY",
		"PAYMENT_DELAY", "GEMINI_API_KEY", "ELEVEN_LABS_API_KEY", "ELEVEN_LABS_CHUNK_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.StorageDriver != StorageMemory {
		t.Errorf("Expected memory storage, got %s", cfg.StorageDriver)
	}
	if cfg.StorageKey != "linguaforge_user" {
		t.Errorf("Expected default storage key, got %s", cfg.StorageKey)
	}
	if cfg.AnalysisTimeout != 30*time.Second {
		t.Errorf("Expected 30s analysis timeout, got %s", cfg.AnalysisTimeout)
	}
	if cfg.PracticeXP != 2 {
		t.Errorf("Expected practice XP 2, got %d", cfg.PracticeXP)
	}
	if cfg.LearningLanguage != "es-ES" || cfg.TutorVoiceLanguage != "en-US" {
		t.Errorf("Unexpected languages: %s / %s", cfg.LearningLanguage, cfg.TutorVoiceLanguage)
	}
	if cfg.IsProduction() {
		t.Error("Expected development environment by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/test.db")
	t.Setenv("ANALYSIS_TIMEOUT", "5s")
	t.Setenv("PRACTICE_XP", "0")
	t.Setenv("ELEVEN_LABS_CHUNK_SIZE", "2048")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.StorageDriver != StorageSQLite {
		t.Errorf("Expected sqlite storage, got %s", cfg.StorageDriver)
	}
	if cfg.SQLitePath != "/tmp/test.db" {
		t.Errorf("Expected sqlite path override, got %s", cfg.SQLitePath)
	}
	if cfg.AnalysisTimeout != 5*time.Second {
		t.Errorf("Expected 5s, got %s", cfg.AnalysisTimeout)
	}
	if cfg.PracticeXP != 0 {
		t.Errorf("Expected practice XP disabled, got %d", cfg.PracticeXP)
	}
	if cfg.ElevenLabs.ChunkSize != 2048 {
		t.Errorf("Expected chunk size 2048, got %d", cfg.ElevenLabs.ChunkSize)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown storage driver", key: "STORAGE_DRIVER", value: "postgres"},
		{name: "malformed timeout", key: "ANALYSIS_TIMEOUT", value: "soon"},
		{name: "zero timeout", key: "ANALYSIS_TIMEOUT", value: "0s"},
		{name: "malformed practice xp", key: "PRACTICE_XP", value: "two"},
		{name: "negative practice xp", key: "PRACTICE_XP", value: "-1"},
		{name: "gemini without key", key: "TUTOR_PROVIDER", value: "gemini"},
		{name: "eleven labs without key", key: "SPEECH_OUTPUT", value: "elevenlabs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
