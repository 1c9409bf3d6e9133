package tutor

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func TestValidateGeminiConfig(t *testing.T) {
	if err := ValidateGeminiConfig(GeminiConfig{}); err == nil {
		t.Error("Expected error without API key")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 2}); err == nil {
		t.Error("Expected error for temperature above 1")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestGeminiTutor_Analyze(t *testing.T) {
	var calls int
	var lastContents []*genai.Content
	generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		lastContents = contents
		if model != defaultModel {
			t.Errorf("Expected model %s, got %s", defaultModel, model)
		}
		if config.ResponseMIMEType != "application/json" {
			t.Errorf("Expected JSON response type, got %q", config.ResponseMIMEType)
		}
		return textResponse(`{"message":"¡Muy bien!","feedback":"Clear.","scores":{"pronunciation":8,"grammar":12,"fluency":7.5},"suggestions":["Slow down"]}`), nil
	}

	tutor := newGeminiTutor(generate, GeminiConfig{APIKey: "k", Language: "es-ES"}, zaptest.NewLogger(t))

	reply, err := tutor.Analyze(context.Background(), "Hola")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if reply.Message != "¡Muy bien!" {
		t.Errorf("Expected message '¡Muy bien!', got %q", reply.Message)
	}
	if reply.Scores.Grammar != 10 {
		t.Errorf("Expected grammar clamped to 10, got %.1f", reply.Scores.Grammar)
	}
	if len(reply.Suggestions) != 1 {
		t.Errorf("Expected 1 suggestion, got %d", len(reply.Suggestions))
	}

	// The second call carries the first exchange as context
	if _, err := tutor.Analyze(context.Background(), "Buenos dias"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(lastContents) != 3 {
		t.Errorf("Expected 3 contents with history, got %d", len(lastContents))
	}

	tutor.Forget()
	if _, err := tutor.Analyze(context.Background(), "Adiós"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(lastContents) != 1 {
		t.Errorf("Expected history to be forgotten, got %d contents", len(lastContents))
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestGeminiTutor_RetriesThenFails(t *testing.T) {
	var calls int
	generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		return nil, errors.New("unavailable")
	}

	tutor := newGeminiTutor(generate, GeminiConfig{APIKey: "k"}, zaptest.NewLogger(t))
	tutor.retryDelay = 0

	if _, err := tutor.Analyze(context.Background(), "Hola"); err == nil {
		t.Error("Expected error after exhausting retries")
	}
	if calls != defaultMaxAttempts {
		t.Errorf("Expected %d attempts, got %d", defaultMaxAttempts, calls)
	}
}

func TestGeminiTutor_RejectsMalformedReply(t *testing.T) {
	tests := map[string]string{
		"not json":   "I think you did great",
		"no message": `{"message":"","feedback":"x","scores":{"pronunciation":1,"grammar":1,"fluency":1},"suggestions":[]}`,
		"empty":      "",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return textResponse(body), nil
			}
			tutor := newGeminiTutor(generate, GeminiConfig{APIKey: "k"}, zaptest.NewLogger(t))
			if _, err := tutor.Analyze(context.Background(), "Hola"); err == nil {
				t.Error("Expected error for malformed reply")
			}
		})
	}
}

func TestLanguageName(t *testing.T) {
	if got := languageName("es-ES"); got != "Spanish" {
		t.Errorf("Expected Spanish, got %s", got)
	}
	if got := languageName("fr-FR"); got != "French" {
		t.Errorf("Expected French, got %s", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Hola", 50, "Hola"},
		{"¿Cómo estás?", 5, "¿Cómo"},
		{"mañana", 3, "mañ"},
		{"", 5, ""},
	}

	for _, tt := range tests {
		got := truncateRunes(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Expected valid UTF-8 for %q, got %q", tt.in, got)
		}
	}
}
