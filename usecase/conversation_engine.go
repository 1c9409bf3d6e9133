package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

// FallbackReply is appended as the tutor turn whenever analysis fails.
const FallbackReply = "Sorry, I couldn't analyze that. Could you please try again?"

const (
	defaultAnalysisTimeout = 30 * time.Second
	subscriberBuffer       = 256
)

// ConversationState is the turn-taking state of a voice session
type ConversationState string

const (
	ConversationIdle         ConversationState = "idle"
	ConversationListening    ConversationState = "listening"
	ConversationTranscribing ConversationState = "transcribing"
	ConversationAnalyzing    ConversationState = "analyzing"
)

// EventType identifies an engine notification
type EventType string

const (
	EventStateChanged    EventType = "state"
	EventTurnAppended    EventType = "turn"
	EventReset           EventType = "reset"
	EventSpeakingStarted EventType = "speaking_start"
	EventSpeakingEnded   EventType = "speaking_end"
	EventSpeechAudio     EventType = "speech_audio"
	EventCaptureFailed   EventType = "capture_failed"
)

// Event is delivered to subscribers in the order it happened
type Event struct {
	Type  EventType
	State ConversationState
	Turn  *entities.Turn
	Audio []byte
	// Message is a learner-facing description for capture failures
	Message string
}

// ConversationConfig tunes the conversation engine
type ConversationConfig struct {
	// Language is the language the learner speaks, e.g. es-ES
	Language string
	// VoiceLanguage is the language the tutor's replies are spoken in
	VoiceLanguage   string
	SampleRate      int
	Encoding        string
	AnalysisTimeout time.Duration
	// PracticeXP is awarded each time the learner starts speaking; zero disables it
	PracticeXP int
}

// ConversationSnapshot is the derived state observers render
type ConversationSnapshot struct {
	State        ConversationState  `json:"state"`
	IsAnalyzing  bool               `json:"is_analyzing"`
	IsSpeaking   bool               `json:"is_speaking"`
	Turns        []entities.Turn    `json:"turns"`
	LastAnalysis *entities.Analysis `json:"last_analysis,omitempty"`
}

// ConversationEngine drives the voice-chat loop:
// Idle -> Listening -> Transcribing -> Analyzing -> Idle.
// Speaking the tutor's reply runs alongside and never blocks the next listen.
type ConversationEngine struct {
	mu sync.Mutex

	input  repositories.SpeechInput
	output repositories.SpeechOutput
	tutor  repositories.Tutor
	ledger Progression
	config ConversationConfig
	now    Clock
	logger *zap.Logger

	state        ConversationState
	turns        []entities.Turn
	lastAnalysis *entities.Analysis

	capture       repositories.SpeechInputStream
	captureCancel context.CancelFunc
	captureGen    uint64
	// opening is set while a capture is being started outside the lock
	opening bool

	// speakMu orders calls into the output so that speakGen follows the
	// output's own notion of the current utterance.
	speakMu  sync.Mutex
	speaking bool
	speakGen uint64

	subscribers map[int]chan Event
	nextSub     int

	inflight sync.WaitGroup
}

// NewConversationEngine creates an idle engine. A nil input means the host
// has no speech-input capability; a nil output keeps the tutor silent.
func NewConversationEngine(
	input repositories.SpeechInput,
	output repositories.SpeechOutput,
	tutor repositories.Tutor,
	ledger Progression,
	config ConversationConfig,
	clock Clock,
	logger *zap.Logger,
) *ConversationEngine {
	if clock == nil {
		clock = time.Now
	}
	if config.AnalysisTimeout <= 0 {
		config.AnalysisTimeout = defaultAnalysisTimeout
	}
	if config.Language == "" {
		config.Language = "es-ES"
	}
	if config.VoiceLanguage == "" {
		config.VoiceLanguage = "en-US"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Encoding == "" {
		config.Encoding = "LINEAR16"
	}
	return &ConversationEngine{
		input:       input,
		output:      output,
		tutor:       tutor,
		ledger:      ledger,
		config:      config,
		now:         clock,
		logger:      logger,
		state:       ConversationIdle,
		turns:       make([]entities.Turn, 0),
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe returns a channel of engine events and a function that cancels
// the subscription. Events are dropped for subscribers that fall behind.
func (e *ConversationEngine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, subscriberBuffer)
	e.subscribers[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(sub)
		}
	}
}

// BeginListening opens a speech capture. Zero fields of opts fall back to the
// engine configuration.
func (e *ConversationEngine) BeginListening(ctx context.Context, opts repositories.AudioConfig) error {
	e.mu.Lock()
	if e.state != ConversationIdle {
		state := e.state
		e.mu.Unlock()
		return entities.InvalidState("begin listening", state)
	}
	if e.opening {
		e.mu.Unlock()
		return entities.InvalidState("begin listening", "opening")
	}
	if e.input == nil {
		e.mu.Unlock()
		e.logger.Warn("Speech input requested but not available")
		return fmt.Errorf("speech input: %w", entities.ErrUnsupportedCapability)
	}
	e.opening = true
	e.mu.Unlock()

	if opts.Language == "" {
		opts.Language = e.config.Language
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = e.config.SampleRate
	}
	if opts.Encoding == "" {
		opts.Encoding = e.config.Encoding
	}

	// The capture outlives the request that opened it.
	captureCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := e.input.Start(captureCtx, opts)

	e.mu.Lock()
	e.opening = false
	if err != nil {
		e.mu.Unlock()
		cancel()
		e.logger.Error("Failed to start speech capture", zap.Error(err))
		if errors.Is(err, entities.ErrUnsupportedCapability) {
			return err
		}
		return entities.Provider("speech input", err)
	}

	e.captureGen++
	gen := e.captureGen
	e.capture = stream
	e.captureCancel = cancel
	e.setState(ConversationListening)
	e.mu.Unlock()

	go e.watchCapture(gen, stream)

	if e.config.PracticeXP > 0 {
		if _, err := e.ledger.AddXP(ctx, e.config.PracticeXP); err != nil && !errors.Is(err, entities.ErrNoActiveUser) {
			e.logger.Error("Failed to award practice XP", zap.Error(err))
		}
	}

	e.logger.Info("Listening started",
		zap.String("language", opts.Language),
		zap.Int("sampleRate", opts.SampleRate),
		zap.String("encoding", opts.Encoding))
	return nil
}

// Feed forwards captured audio to the active capture
func (e *ConversationEngine) Feed(audio []byte) error {
	e.mu.Lock()
	stream := e.capture
	state := e.state
	e.mu.Unlock()

	if state != ConversationListening || stream == nil {
		return entities.InvalidState("feed audio", state)
	}
	if err := stream.Stream(audio); err != nil {
		return entities.Provider("speech input", err)
	}
	return nil
}

// FeedTranscript hands a client-side recognition result to the active capture
func (e *ConversationEngine) FeedTranscript(text string, isFinal bool) error {
	e.mu.Lock()
	stream := e.capture
	state := e.state
	e.mu.Unlock()

	if stream == nil || (state != ConversationListening && state != ConversationTranscribing) {
		return entities.InvalidState("feed transcript", state)
	}
	feeder, ok := stream.(repositories.TranscriptFeeder)
	if !ok {
		return fmt.Errorf("transcript feed: %w", entities.ErrUnsupportedCapability)
	}
	return feeder.FeedTranscript(text, isFinal)
}

// StopListening ends the capture phase and waits for the final transcript
func (e *ConversationEngine) StopListening() error {
	e.mu.Lock()
	if e.state != ConversationListening {
		state := e.state
		e.mu.Unlock()
		return entities.InvalidState("stop listening", state)
	}
	stream := e.capture
	e.setState(ConversationTranscribing)
	e.mu.Unlock()

	if err := stream.Stop(); err != nil {
		e.logger.Error("Failed to stop speech capture", zap.Error(err))
	}
	return nil
}

// CancelListening abandons the capture without appending any turn
func (e *ConversationEngine) CancelListening() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != ConversationListening && e.state != ConversationTranscribing {
		return entities.InvalidState("cancel listening", e.state)
	}
	e.endCapture()
	e.setState(ConversationIdle)
	e.logger.Info("Listening cancelled")
	return nil
}

// Reset clears the transcript and the cached analysis. An analysis already in
// flight is not interrupted and still appends its reply when it resolves.
func (e *ConversationEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.turns = make([]entities.Turn, 0)
	e.lastAnalysis = nil
	if memory, ok := e.tutor.(repositories.ConversationMemory); ok {
		memory.Forget()
	}
	e.publish(Event{Type: EventReset, State: e.state})
	e.logger.Info("Conversation reset", zap.String("state", string(e.state)))
}

// Speak reads text aloud without touching the turn-taking state
func (e *ConversationEngine) Speak(text, language string) error {
	if e.output == nil {
		return fmt.Errorf("speech output: %w", entities.ErrUnsupportedCapability)
	}
	if strings.TrimSpace(text) == "" {
		return entities.Validation("text to speak is empty")
	}
	if language == "" {
		language = e.config.VoiceLanguage
	}
	return e.speak(text, language)
}

// State returns the current turn-taking state
func (e *ConversationEngine) State() ConversationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsAnalyzing reports whether a tutor analysis is outstanding
func (e *ConversationEngine) IsAnalyzing() bool {
	return e.State() == ConversationAnalyzing
}

// IsSpeaking reports whether a tutor utterance is playing
func (e *ConversationEngine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// Turns returns a copy of the transcript in append order
func (e *ConversationEngine) Turns() []entities.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]entities.Turn(nil), e.turns...)
}

// LastAnalysis returns the analysis of the latest tutor reply, if any
func (e *ConversationEngine) LastAnalysis() *entities.Analysis {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastAnalysis == nil {
		return nil
	}
	a := *e.lastAnalysis
	return &a
}

// Snapshot returns everything an observer needs to render the session
func (e *ConversationEngine) Snapshot() ConversationSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := ConversationSnapshot{
		State:       e.state,
		IsAnalyzing: e.state == ConversationAnalyzing,
		IsSpeaking:  e.speaking,
		Turns:       append([]entities.Turn(nil), e.turns...),
	}
	if e.lastAnalysis != nil {
		a := *e.lastAnalysis
		s.LastAnalysis = &a
	}
	return s
}

// Wait blocks until outstanding analyses and utterances have finished
func (e *ConversationEngine) Wait() {
	e.inflight.Wait()
}

func (e *ConversationEngine) watchCapture(gen uint64, stream repositories.SpeechInputStream) {
	for ev := range stream.Results() {
		if ev.Err != nil {
			e.captureFailed(gen, ev.Err)
			return
		}
		if !ev.IsFinal {
			e.logger.Debug("Interim transcript", zap.String("text", ev.Text))
			continue
		}
		if strings.TrimSpace(ev.Text) == "" {
			continue
		}
		e.transcriptReady(gen, ev.Text)
		return
	}
	e.captureFailed(gen, repositories.ErrNoSpeech)
}

func (e *ConversationEngine) transcriptReady(gen uint64, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.captureGen || (e.state != ConversationListening && e.state != ConversationTranscribing) {
		e.logger.Debug("Ignoring transcript from a stale capture", zap.String("text", text))
		return
	}

	if e.state == ConversationListening {
		e.setState(ConversationTranscribing)
	}
	e.endCapture()

	e.appendTurn(entities.Turn{
		ID:        uuid.NewString(),
		Speaker:   entities.SpeakerUser,
		Text:      text,
		Timestamp: e.now(),
	})
	e.setState(ConversationAnalyzing)

	e.logger.Info("Transcript received", zap.String("text", text))

	e.inflight.Add(1)
	go e.analyze(text)
}

func (e *ConversationEngine) captureFailed(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.captureGen || (e.state != ConversationListening && e.state != ConversationTranscribing) {
		return
	}

	message := "Something went wrong while listening. Please try again."
	switch {
	case errors.Is(err, repositories.ErrNoSpeech):
		message = "I didn't hear anything. Please try again."
		e.logger.Warn("No speech detected")
	case errors.Is(err, repositories.ErrAudioCapture):
		message = "I couldn't access the microphone."
		e.logger.Error("Audio capture failed", zap.Error(err))
	default:
		e.logger.Error("Speech recognition error", zap.Error(err))
	}

	e.endCapture()
	e.publish(Event{Type: EventCaptureFailed, State: e.state, Message: message})
	e.setState(ConversationIdle)
}

func (e *ConversationEngine) analyze(text string) {
	defer e.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.config.AnalysisTimeout)
	defer cancel()

	started := time.Now()
	reply, err := e.tutor.Analyze(ctx, text)

	e.mu.Lock()
	turn := entities.Turn{
		ID:        uuid.NewString(),
		Speaker:   entities.SpeakerTutor,
		Timestamp: e.now(),
	}
	if err != nil {
		e.logger.Error("Tutor analysis failed",
			zap.String("text", text),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		turn.Text = FallbackReply
	} else {
		turn.Text = reply.Message
		turn.Analysis = reply.Analysis()
		a := *turn.Analysis
		e.lastAnalysis = &a
		e.logger.Info("Tutor analysis completed",
			zap.Float64("pronunciation", turn.Analysis.Scores.Pronunciation),
			zap.Float64("grammar", turn.Analysis.Scores.Grammar),
			zap.Float64("fluency", turn.Analysis.Scores.Fluency),
			zap.Duration("elapsed", time.Since(started)))
	}
	e.appendTurn(turn)
	if e.state == ConversationAnalyzing {
		e.setState(ConversationIdle)
	}
	e.mu.Unlock()

	if err != nil {
		return
	}

	if e.output != nil {
		if err := e.speak(reply.Message, e.config.VoiceLanguage); err != nil {
			e.logger.Error("Failed to speak tutor reply", zap.Error(err))
		}
	}
	if _, err := e.ledger.RecordActivity(context.Background()); err != nil && !errors.Is(err, entities.ErrNoActiveUser) {
		e.logger.Error("Failed to record activity", zap.Error(err))
	}
}

func (e *ConversationEngine) speak(text, language string) error {
	e.speakMu.Lock()
	events, err := e.output.Speak(context.Background(), text, language)
	if err != nil {
		e.speakMu.Unlock()
		return entities.Provider("speech output", err)
	}

	e.mu.Lock()
	e.speakGen++
	gen := e.speakGen
	e.inflight.Add(1)
	e.mu.Unlock()
	e.speakMu.Unlock()

	go func() {
		defer e.inflight.Done()
		for ev := range events {
			e.mu.Lock()
			switch ev.Type {
			case repositories.SpeechStart:
				if gen == e.speakGen {
					e.speaking = true
					e.publish(Event{Type: EventSpeakingStarted, State: e.state})
				}
			case repositories.SpeechAudio:
				if gen == e.speakGen {
					e.publish(Event{Type: EventSpeechAudio, State: e.state, Audio: ev.Audio})
				}
			case repositories.SpeechEnd, repositories.SpeechError:
				if ev.Err != nil {
					e.logger.Debug("Utterance ended early", zap.Error(ev.Err))
				}
				// A superseded utterance must not clear the flag of its successor
				if gen == e.speakGen {
					e.speaking = false
					e.publish(Event{Type: EventSpeakingEnded, State: e.state})
				}
			}
			e.mu.Unlock()
		}
	}()
	return nil
}

// endCapture must be called with e.mu held.
func (e *ConversationEngine) endCapture() {
	e.captureGen++
	if e.captureCancel != nil {
		e.captureCancel()
	}
	e.capture = nil
	e.captureCancel = nil
}

// appendTurn must be called with e.mu held.
func (e *ConversationEngine) appendTurn(turn entities.Turn) {
	e.turns = append(e.turns, turn)
	t := turn
	e.publish(Event{Type: EventTurnAppended, State: e.state, Turn: &t})
}

// setState must be called with e.mu held.
func (e *ConversationEngine) setState(state ConversationState) {
	if e.state == state {
		return
	}
	e.logger.Debug("Conversation state changed",
		zap.String("from", string(e.state)),
		zap.String("to", string(state)))
	e.state = state
	e.publish(Event{Type: EventStateChanged, State: state})
}

// publish must be called with e.mu held.
func (e *ConversationEngine) publish(ev Event) {
	for id, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			e.logger.Warn("Dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("event", string(ev.Type)))
		}
	}
}
