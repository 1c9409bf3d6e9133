package stt

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/repositories"
)

var (
	_ repositories.SpeechInput       = (*MockSpeechInput)(nil)
	_ repositories.SpeechInputStream = (*MockSpeechInputStream)(nil)
	_ repositories.TranscriptFeeder  = (*MockSpeechInputStream)(nil)
)

var errStreamClosed = errors.New("speech stream already closed")

// MockSpeechInput is a placeholder implementation for speech recognition
type MockSpeechInput struct {
	logger *zap.Logger
}

// NewMockSpeechInput creates a new mock speech input
func NewMockSpeechInput(logger *zap.Logger) *MockSpeechInput {
	return &MockSpeechInput{logger: logger}
}

// Start implements repositories.SpeechInput
func (s *MockSpeechInput) Start(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechInputStream, error) {
	s.logger.Info("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	stream := &MockSpeechInputStream{
		logger:  s.logger,
		ctx:     ctx,
		results: make(chan repositories.TranscriptEvent, 16),
	}
	go func() {
		<-ctx.Done()
		stream.finish(nil)
	}()
	return stream, nil
}

// MockSpeechInputStream transcribes by cumulative audio size, or relays
// transcripts recognized on the client.
type MockSpeechInputStream struct {
	mu         sync.Mutex
	logger     *zap.Logger
	ctx        context.Context
	results    chan repositories.TranscriptEvent
	audioBytes int
	transcript string
	closed     bool
}

// Results implements repositories.SpeechInputStream
func (m *MockSpeechInputStream) Results() <-chan repositories.TranscriptEvent {
	return m.results
}

// Stream implements mock streaming audio processing
func (m *MockSpeechInputStream) Stream(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errStreamClosed
	}
	m.audioBytes += len(data)
	m.logger.Debug("Processing mock audio chunk", zap.Int("size", len(data)), zap.Int("total", m.audioBytes))
	return nil
}

// FeedTranscript implements repositories.TranscriptFeeder
func (m *MockSpeechInputStream) FeedTranscript(text string, isFinal bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errStreamClosed
	}
	m.transcript = text
	if !isFinal {
		select {
		case m.results <- repositories.TranscriptEvent{Text: text}:
		default:
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.finish(&repositories.TranscriptEvent{Text: text, IsFinal: true})
	return nil
}

// Stop emits the final transcription and ends the stream
func (m *MockSpeechInputStream) Stop() error {
	m.mu.Lock()
	transcript := m.transcript
	if transcript == "" && m.audioBytes > 0 {
		transcript = mockTranscription(m.audioBytes)
	}
	m.mu.Unlock()

	m.logger.Info("Ending mock transcription stream", zap.String("result", transcript))

	if transcript == "" {
		m.finish(&repositories.TranscriptEvent{Err: repositories.ErrNoSpeech})
		return nil
	}
	m.finish(&repositories.TranscriptEvent{Text: transcript, IsFinal: true})
	return nil
}

// finish delivers the last event, if any, and closes the results channel once.
func (m *MockSpeechInputStream) finish(last *repositories.TranscriptEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	if last != nil {
		select {
		case m.results <- *last:
		case <-m.ctx.Done():
		}
	}
	close(m.results)
}

// mockTranscription picks a phrase based on cumulative audio size
func mockTranscription(size int) string {
	switch {
	case size > 10000:
		return "Me gusta aprender español"
	case size > 5000:
		return "Buenos dias"
	case size > 1000:
		return "¿Como estas?"
	default:
		return "Hola"
	}
}
