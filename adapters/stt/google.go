package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.SpeechInput = (*GoogleSpeechInput)(nil)

// GoogleSpeechInput implements SpeechInput for Google Cloud
type GoogleSpeechInput struct {
	logger *zap.Logger
}

// NewGoogleSpeechInput creates a Google Cloud speech input. Credentials come
// from the environment (GOOGLE_APPLICATION_CREDENTIALS).
func NewGoogleSpeechInput(logger *zap.Logger) *GoogleSpeechInput {
	return &GoogleSpeechInput{logger: logger}
}

// Start implements repositories.SpeechInput
func (g *GoogleSpeechInput) Start(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechInputStream, error) {
	// Convert encoding string to Google Speech API enum
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	// Send initial configuration
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    config.Language,
				},
				InterimResults:  true,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &GoogleSpeechInputStream{
		client:  client,
		stream:  stream,
		ctx:     ctx,
		logger:  g.logger,
		results: make(chan repositories.TranscriptEvent, 8),
	}
	go s.receiveResults()

	return s, nil
}

// GoogleSpeechInputStream is one streaming recognition call
type GoogleSpeechInputStream struct {
	client  *speech.Client
	stream  speechpb.Speech_StreamingRecognizeClient
	ctx     context.Context
	logger  *zap.Logger
	results chan repositories.TranscriptEvent

	mu       sync.Mutex
	sendDone bool
}

// Results implements repositories.SpeechInputStream
func (g *GoogleSpeechInputStream) Results() <-chan repositories.TranscriptEvent {
	return g.results
}

// Stream implements repositories.SpeechInputStream
func (g *GoogleSpeechInputStream) Stream(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendDone {
		return errStreamClosed
	}

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// Stop closes the send side; the final result still arrives on Results
func (g *GoogleSpeechInputStream) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendDone {
		return nil
	}
	g.sendDone = true

	if err := g.stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (g *GoogleSpeechInputStream) receiveResults() {
	defer close(g.results)
	defer g.client.Close()

	gotFinal := false
	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			if !gotFinal {
				g.emit(repositories.TranscriptEvent{Err: repositories.ErrNoSpeech})
			}
			return
		}
		if err != nil {
			if g.ctx.Err() != nil {
				// Capture was cancelled
				return
			}
			g.logger.Error("Failed to receive recognition response", zap.Error(err))
			g.emit(repositories.TranscriptEvent{Err: fmt.Errorf("%w: %v", repositories.ErrAudioCapture, err)})
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			// Take the best alternative
			ev := repositories.TranscriptEvent{
				Text:    result.Alternatives[0].Transcript,
				IsFinal: result.IsFinal,
			}
			if ev.IsFinal {
				gotFinal = true
			}
			if !g.emit(ev) {
				return
			}
		}
	}
}

func (g *GoogleSpeechInputStream) emit(ev repositories.TranscriptEvent) bool {
	select {
	case g.results <- ev:
		return true
	case <-g.ctx.Done():
		return false
	}
}

var errUnsupportedEncoding = errors.New("unsupported encoding")

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("%w: %s", errUnsupportedEncoding, encoding)
	}
}
