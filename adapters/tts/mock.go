package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.Synthesizer = (*MockSynthesizer)(nil)

// mockBytesPerRune is roughly how much 16-bit 24kHz PCM one spoken character takes
const mockBytesPerRune = 3200

// MockSynthesizer streams silent PCM sized to the text, paced like playback
type MockSynthesizer struct {
	chunkSize  int
	chunkDelay time.Duration
	logger     *zap.Logger
}

// NewMockSynthesizer creates a mock synthesizer. chunkDelay paces the chunks;
// zero streams as fast as the consumer reads.
func NewMockSynthesizer(chunkDelay time.Duration, logger *zap.Logger) *MockSynthesizer {
	return &MockSynthesizer{
		chunkSize:  defaultChunkSize * 4,
		chunkDelay: chunkDelay,
		logger:     logger,
	}
}

// ConvertTextToSpeech implements repositories.Synthesizer
func (m *MockSynthesizer) ConvertTextToSpeech(ctx context.Context, text string, language string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	total := len([]rune(text)) * mockBytesPerRune
	m.logger.Info("Synthesizing mock speech",
		zap.String("text", text),
		zap.String("language", language),
		zap.Int("bytes", total))

	audioChan := make(chan []byte, 10)
	go func() {
		defer close(audioChan)
		for sent := 0; sent < total; sent += m.chunkSize {
			n := m.chunkSize
			if total-sent < n {
				n = total - sent
			}
			select {
			case audioChan <- make([]byte, n):
			case <-ctx.Done():
				return
			}
			if m.chunkDelay > 0 {
				select {
				case <-time.After(m.chunkDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return audioChan, nil
}
