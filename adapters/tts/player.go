package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.SpeechOutput = (*Player)(nil)

// Player plays one utterance at a time on top of a Synthesizer. Starting a
// new utterance cancels the one in flight.
type Player struct {
	synth  repositories.Synthesizer
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPlayer creates a player for synth
func NewPlayer(synth repositories.Synthesizer, logger *zap.Logger) *Player {
	return &Player{synth: synth, logger: logger}
}

// Speak implements repositories.SpeechOutput
func (p *Player) Speak(ctx context.Context, text, language string) (<-chan repositories.SpeechEvent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.logger.Debug("Interrupting current utterance")
		p.cancel()
	}
	uctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	audio, err := p.synth.ConvertTextToSpeech(uctx, text, language)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	events := make(chan repositories.SpeechEvent, 16)
	go func() {
		defer close(events)
		defer cancel()

		events <- repositories.SpeechEvent{Type: repositories.SpeechStart}

		chunks := 0
		for {
			select {
			case chunk, ok := <-audio:
				if !ok {
					// A cancelled synthesizer closes its channel too
					p.logger.Debug("Utterance finished", zap.Int("chunks", chunks))
					events <- repositories.SpeechEvent{Type: repositories.SpeechEnd, Err: uctx.Err()}
					return
				}
				chunks++
				select {
				case events <- repositories.SpeechEvent{Type: repositories.SpeechAudio, Audio: chunk}:
				case <-uctx.Done():
				}
			case <-uctx.Done():
				p.logger.Debug("Utterance cancelled", zap.Int("chunks", chunks))
				events <- repositories.SpeechEvent{Type: repositories.SpeechEnd, Err: uctx.Err()}
				return
			}
		}
	}()

	return events, nil
}

// Stop cancels the utterance in flight, if any
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
