package tutor

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.Tutor = (*MockTutor)(nil)

type cannedReply struct {
	text          string
	feedback      string
	pronunciation float64
	grammar       float64
}

var cannedReplies = map[string]cannedReply{
	"hola": {
		text:          "¡Hola! Great pronunciation! 'Hola' means 'Hello' in Spanish. Try saying 'Hola, ¿cómo estás?' which means 'Hello, how are you?'",
		feedback:      "Excellent! Your pronunciation was very clear.",
		pronunciation: 8.5,
		grammar:       9.0,
	},
	"como estas": {
		text:          "¡Muy bien! You said 'How are you?' perfectly. You can respond with 'Estoy bien, gracias' which means 'I'm fine, thank you'.",
		feedback:      "Perfect grammar and pronunciation!",
		pronunciation: 9.0,
		grammar:       9.5,
	},
	"buenos dias": {
		text:          "¡Excelente! 'Buenos días' means 'Good morning'. You can also say 'Buenas tardes' for 'Good afternoon' or 'Buenas noches' for 'Good evening'.",
		feedback:      "Great job with the pronunciation!",
		pronunciation: 8.0,
		grammar:       9.0,
	},
}

var defaultReply = cannedReply{
	text:          "I heard you say something in Spanish! That's great practice. Try speaking a bit slower and clearer. Some common phrases to practice: 'Hola', 'Buenos días', '¿Cómo estás?'",
	feedback:      "Keep practicing! Your Spanish is improving.",
	pronunciation: 7.0,
	grammar:       7.5,
}

var mockSuggestions = []string{
	"Try speaking more slowly for better pronunciation",
	"Practice rolling your R's",
	"Focus on vowel sounds - they're clearer in Spanish",
}

var punctuation = strings.NewReplacer("¿", "", "?", "", "¡", "", "!", "")

// MockTutor answers from a canned table after a simulated delay
type MockTutor struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewMockTutor creates a mock tutor
func NewMockTutor(delay time.Duration, logger *zap.Logger) *MockTutor {
	return &MockTutor{delay: delay, logger: logger}
}

// Analyze implements repositories.Tutor
func (m *MockTutor) Analyze(ctx context.Context, userText string) (entities.TutorReply, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return entities.TutorReply{}, ctx.Err()
		}
	}

	key := cannedKey(userText)
	reply, ok := cannedReplies[key]
	if !ok {
		reply = defaultReply
	}
	m.logger.Info("Mock tutor analysis", zap.String("key", key), zap.Bool("matched", ok))

	return entities.TutorReply{
		Message:  reply.text,
		Feedback: reply.feedback,
		Scores: entities.Scores{
			Pronunciation: reply.pronunciation,
			Grammar:       reply.grammar,
			Fluency:       (reply.pronunciation + reply.grammar) / 2,
		},
		Suggestions: append([]string(nil), mockSuggestions...),
	}, nil
}

// cannedKey lower-cases the text and strips Spanish punctuation marks
func cannedKey(text string) string {
	return strings.TrimSpace(punctuation.Replace(strings.ToLower(text)))
}
