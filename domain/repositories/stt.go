package repositories

import (
	"context"
	"errors"
)

// Speech input error conditions reported through TranscriptEvent.Err.
var (
	ErrNoSpeech     = errors.New("no speech detected")
	ErrAudioCapture = errors.New("audio capture failed")
)

// SpeechInput abstracts speech recognition services
type SpeechInput interface {
	// Start opens a capture for the given language. The returned stream
	// delivers transcript events until it is stopped or its context ends.
	Start(ctx context.Context, config AudioConfig) (SpeechInputStream, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// TranscriptEvent is one recognition result. A non-nil Err ends the capture.
type TranscriptEvent struct {
	Text    string
	IsFinal bool
	Err     error
}

// SpeechInputStream is one active capture
type SpeechInputStream interface {
	// Results is closed once the capture has ended
	Results() <-chan TranscriptEvent
	// Stream forwards raw audio captured by the client
	Stream(data []byte) error
	// Stop ends the capture; pending final results are still delivered
	Stop() error
}

// TranscriptFeeder is implemented by streams that accept transcripts
// recognized on the client side instead of raw audio.
type TranscriptFeeder interface {
	FeedTranscript(text string, isFinal bool) error
}
