package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultTemperature     = 0.4
	defaultMaxOutputTokens = 512
	defaultMaxAttempts     = 3
	// maxHistory bounds the dialogue context sent with each request, in messages
	maxHistory = 20
)

const systemPrompt = `You are a friendly %s tutor talking with a learner who is practicing speaking.
For every learner utterance reply with a JSON object:
- "message": your conversational reply in English, quoting %s phrases the learner can try next
- "feedback": one short sentence on what the learner did well or should fix
- "scores": {"pronunciation", "grammar", "fluency"}, each a number from 0 to 10
- "suggestions": two or three short practice tips
The utterance comes from speech recognition, so judge pronunciation from word choice and transcription errors.`

var (
	_ repositories.Tutor              = (*GeminiTutor)(nil)
	_ repositories.ConversationMemory = (*GeminiTutor)(nil)
)

// GeminiConfig holds configuration for the Gemini tutor
type GeminiConfig struct {
	APIKey          string  // Required
	Model           string  // Optional: defaults to gemini-2.0-flash
	Temperature     float32 // Optional: between 0 and 1
	MaxOutputTokens int     // Optional
	// Language is the language being learned, e.g. es-ES
	Language string
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}
	return nil
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiTutor analyzes learner utterances with Google's Gemini API
type GeminiTutor struct {
	generate    generateFunc
	model       string
	config      *genai.GenerateContentConfig
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	history []*genai.Content
}

// NewGeminiTutor creates a Gemini-backed tutor
func NewGeminiTutor(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiTutor, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiTutor(client.Models.GenerateContent, config, logger), nil
}

func newGeminiTutor(generate generateFunc, config GeminiConfig, logger *zap.Logger) *GeminiTutor {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	language := languageName(config.Language)

	return &GeminiTutor{
		generate: generate,
		model:    model,
		config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(fmt.Sprintf(systemPrompt, language, language), genai.RoleUser),
			Temperature:       genai.Ptr(temperature),
			MaxOutputTokens:   int32(maxOutputTokens),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    replySchema,
			SafetySettings: []*genai.SafetySetting{
				{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
				{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
				{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
				{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			},
		},
		maxAttempts: defaultMaxAttempts,
		retryDelay:  time.Second,
		logger:      logger,
	}
}

var replySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"message":  {Type: genai.TypeString},
		"feedback": {Type: genai.TypeString},
		"scores": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"pronunciation": {Type: genai.TypeNumber},
				"grammar":       {Type: genai.TypeNumber},
				"fluency":       {Type: genai.TypeNumber},
			},
			Required: []string{"pronunciation", "grammar", "fluency"},
		},
		"suggestions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"message", "feedback", "scores", "suggestions"},
}

// Analyze implements repositories.Tutor
func (g *GeminiTutor) Analyze(ctx context.Context, userText string) (entities.TutorReply, error) {
	g.mu.Lock()
	contents := append([]*genai.Content(nil), g.history...)
	g.mu.Unlock()

	userContent := genai.NewContentFromText(userText, genai.RoleUser)
	contents = append(contents, userContent)

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		response, err = g.generate(ctx, g.model, contents, g.config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.maxAttempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * g.retryDelay):
			case <-ctx.Done():
				return entities.TutorReply{}, ctx.Err()
			}
		}
	}
	if err != nil {
		return entities.TutorReply{}, fmt.Errorf("failed to generate content: %w", err)
	}

	text := responseText(response)
	if text == "" {
		return entities.TutorReply{}, fmt.Errorf("empty response from model")
	}

	var reply entities.TutorReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return entities.TutorReply{}, fmt.Errorf("failed to decode tutor reply: %w", err)
	}
	if strings.TrimSpace(reply.Message) == "" {
		return entities.TutorReply{}, fmt.Errorf("tutor reply has no message")
	}
	reply.Scores = reply.Scores.Clamp()

	g.mu.Lock()
	g.history = append(g.history, userContent, genai.NewContentFromText(reply.Message, genai.RoleModel))
	if len(g.history) > maxHistory {
		g.history = g.history[len(g.history)-maxHistory:]
	}
	g.mu.Unlock()

	g.logger.Info("Tutor reply generated",
		zap.String("userText", truncateRunes(userText, 50)),
		zap.Int("historyLength", len(g.history)))

	return reply, nil
}

// Forget implements repositories.ConversationMemory
func (g *GeminiTutor) Forget() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = nil
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text
}

// languageName maps a language tag to the name used in the prompt
func languageName(tag string) string {
	switch strings.ToLower(strings.SplitN(tag, "-", 2)[0]) {
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "it":
		return "Italian"
	case "pt":
		return "Portuguese"
	case "id":
		return "Indonesian"
	default:
		return "Spanish"
	}
}

// truncateRunes cuts s to at most n characters without splitting one
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
