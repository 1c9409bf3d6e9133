package repositories

import "context"

// Synthesizer converts text into a stream of audio chunks
type Synthesizer interface {
	ConvertTextToSpeech(ctx context.Context, text string, language string) (<-chan []byte, error)
}

// SpeechEventType is the lifecycle stage of an utterance
type SpeechEventType string

const (
	SpeechStart SpeechEventType = "start"
	SpeechAudio SpeechEventType = "audio"
	SpeechEnd   SpeechEventType = "end"
	SpeechError SpeechEventType = "error"
)

// SpeechEvent is emitted while an utterance plays
type SpeechEvent struct {
	Type  SpeechEventType
	Audio []byte
	Err   error
}

// SpeechOutput speaks text aloud. A new Speak cancels any utterance still in
// flight, so at most one is active at a time. The returned channel is closed
// after the end or error event.
type SpeechOutput interface {
	Speak(ctx context.Context, text, language string) (<-chan SpeechEvent, error)
}
