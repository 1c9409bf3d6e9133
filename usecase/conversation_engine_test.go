package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/linguaforge/server/adapters/memory"
	"github.com/linguaforge/server/adapters/stt"
	"github.com/linguaforge/server/adapters/tutor"
	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

type fakeTutor struct {
	mu        sync.Mutex
	analyze   func(ctx context.Context, text string) (entities.TutorReply, error)
	forgotten int
}

func (f *fakeTutor) Analyze(ctx context.Context, text string) (entities.TutorReply, error) {
	return f.analyze(ctx, text)
}

func (f *fakeTutor) Forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten++
}

type fakeOutput struct {
	mu     sync.Mutex
	spoken []string
}

func (o *fakeOutput) Speak(ctx context.Context, text, language string) (<-chan repositories.SpeechEvent, error) {
	o.mu.Lock()
	o.spoken = append(o.spoken, language+":"+text)
	o.mu.Unlock()

	events := make(chan repositories.SpeechEvent, 3)
	events <- repositories.SpeechEvent{Type: repositories.SpeechStart}
	events <- repositories.SpeechEvent{Type: repositories.SpeechAudio, Audio: []byte{0, 1, 2, 3}}
	events <- repositories.SpeechEvent{Type: repositories.SpeechEnd}
	close(events)
	return events, nil
}

func (o *fakeOutput) Spoken() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.spoken...)
}

type failingInput struct{}

func (failingInput) Start(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechInputStream, error) {
	return nil, errors.New("microphone busy")
}

type conversationFixture struct {
	engine *ConversationEngine
	ledger *Ledger
	output *fakeOutput
}

func setupConversation(t *testing.T, input repositories.SpeechInput, tutorProvider repositories.Tutor, config ConversationConfig) *conversationFixture {
	logger := zaptest.NewLogger(t)
	ledger := NewLedger(memory.NewStore(), nil, logger)
	output := &fakeOutput{}

	engine := NewConversationEngine(input, output, tutorProvider, ledger, config, nil, logger)
	t.Cleanup(engine.Wait)
	return &conversationFixture{engine: engine, ledger: ledger, output: output}
}

// say runs one capture that resolves to text through the mock speech input
func say(t *testing.T, engine *ConversationEngine, text string) {
	t.Helper()
	require.NoError(t, engine.BeginListening(context.Background(), repositories.AudioConfig{}))
	require.NoError(t, engine.FeedTranscript(text, true))
	waitIdle(t, engine)
}

func waitIdle(t *testing.T, engine *ConversationEngine) {
	t.Helper()
	require.Eventually(t, func() bool {
		return engine.State() == ConversationIdle
	}, 5*time.Second, 5*time.Millisecond)
	engine.Wait()
}

func TestConversationEngine_UnsupportedCapability(t *testing.T) {
	f := setupConversation(t, nil, tutor.NewMockTutor(0, zaptest.NewLogger(t)), ConversationConfig{})

	err := f.engine.BeginListening(context.Background(), repositories.AudioConfig{})
	require.ErrorIs(t, err, entities.ErrUnsupportedCapability)
	require.Equal(t, ConversationIdle, f.engine.State())
	require.Empty(t, f.engine.Turns())
}

func TestConversationEngine_ProviderStartFailure(t *testing.T) {
	f := setupConversation(t, failingInput{}, tutor.NewMockTutor(0, zaptest.NewLogger(t)), ConversationConfig{})

	err := f.engine.BeginListening(context.Background(), repositories.AudioConfig{})
	require.ErrorIs(t, err, entities.ErrProvider)
	require.Equal(t, ConversationIdle, f.engine.State())
}

func TestConversationEngine_HolaTurn(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{})

	say(t, f.engine, "Hola")

	turns := f.engine.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, entities.SpeakerUser, turns[0].Speaker)
	require.Equal(t, "Hola", turns[0].Text)
	require.Nil(t, turns[0].Analysis)

	require.Equal(t, entities.SpeakerTutor, turns[1].Speaker)
	require.NotNil(t, turns[1].Analysis)
	require.Equal(t, 8.5, turns[1].Analysis.Scores.Pronunciation)
	require.Equal(t, 9.0, turns[1].Analysis.Scores.Grammar)
	require.Equal(t, 8.75, turns[1].Analysis.Scores.Fluency)
	require.Len(t, turns[1].Analysis.Suggestions, 3)
	require.False(t, turns[1].Timestamp.Before(turns[0].Timestamp))

	last := f.engine.LastAnalysis()
	require.NotNil(t, last)
	require.Equal(t, 8.5, last.Scores.Pronunciation)

	require.Equal(t, []string{"en-US:" + turns[1].Text}, f.output.Spoken())
	require.False(t, f.engine.IsSpeaking())
	require.False(t, f.engine.IsAnalyzing())
}

func TestConversationEngine_ProviderFailureAppendsFallback(t *testing.T) {
	logger := zaptest.NewLogger(t)
	failing := &fakeTutor{analyze: func(ctx context.Context, text string) (entities.TutorReply, error) {
		return entities.TutorReply{}, errors.New("quota exceeded")
	}}
	f := setupConversation(t, stt.NewMockSpeechInput(logger), failing, ConversationConfig{})

	say(t, f.engine, "Hola")

	turns := f.engine.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, FallbackReply, turns[1].Text)
	require.Nil(t, turns[1].Analysis)
	require.Nil(t, f.engine.LastAnalysis())
	require.Empty(t, f.output.Spoken(), "the fallback is not spoken")
}

func TestConversationEngine_AnalysisTimeout(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hanging := &fakeTutor{analyze: func(ctx context.Context, text string) (entities.TutorReply, error) {
		<-ctx.Done()
		return entities.TutorReply{}, ctx.Err()
	}}
	f := setupConversation(t, stt.NewMockSpeechInput(logger), hanging, ConversationConfig{AnalysisTimeout: 50 * time.Millisecond})

	say(t, f.engine, "Hola")

	turns := f.engine.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, FallbackReply, turns[1].Text)
}

func TestConversationEngine_KeepsPreviousAnalysisOnFailure(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mock := tutor.NewMockTutor(0, logger)
	fail := false
	flaky := &fakeTutor{analyze: func(ctx context.Context, text string) (entities.TutorReply, error) {
		if fail {
			return entities.TutorReply{}, errors.New("unavailable")
		}
		return mock.Analyze(ctx, text)
	}}
	f := setupConversation(t, stt.NewMockSpeechInput(logger), flaky, ConversationConfig{})

	say(t, f.engine, "Buenos dias")
	first := f.engine.LastAnalysis()
	require.NotNil(t, first)

	fail = true
	say(t, f.engine, "Hola")

	require.Len(t, f.engine.Turns(), 4)
	require.Equal(t, first, f.engine.LastAnalysis())
}

func TestConversationEngine_EventOrder(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{})

	events, unsubscribe := f.engine.Subscribe()
	defer unsubscribe()

	say(t, f.engine, "Hola")

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 9 {
		select {
		case ev := <-events:
			label := string(ev.Type)
			if ev.Type == EventStateChanged {
				label += ":" + string(ev.State)
			}
			if ev.Type == EventTurnAppended {
				label += ":" + string(ev.Turn.Speaker)
			}
			got = append(got, label)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}

	require.Equal(t, []string{
		"state:listening",
		"state:transcribing",
		"turn:user",
		"state:analyzing",
		"turn:tutor",
		"state:idle",
		"speaking_start",
		"speech_audio",
		"speaking_end",
	}, got)
}

func TestConversationEngine_StateGuards(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{})
	ctx := context.Background()

	require.ErrorIs(t, f.engine.StopListening(), entities.ErrInvalidState)
	require.ErrorIs(t, f.engine.CancelListening(), entities.ErrInvalidState)
	require.ErrorIs(t, f.engine.Feed([]byte{1}), entities.ErrInvalidState)

	require.NoError(t, f.engine.BeginListening(ctx, repositories.AudioConfig{}))
	require.ErrorIs(t, f.engine.BeginListening(ctx, repositories.AudioConfig{}), entities.ErrInvalidState)
	require.NoError(t, f.engine.Feed([]byte{1, 2, 3}))

	require.NoError(t, f.engine.CancelListening())
	require.Equal(t, ConversationIdle, f.engine.State())
	require.Empty(t, f.engine.Turns())
}

func TestConversationEngine_StopWithoutSpeech(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{})

	events, unsubscribe := f.engine.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.engine.BeginListening(context.Background(), repositories.AudioConfig{}))
	require.NoError(t, f.engine.StopListening())
	waitIdle(t, f.engine)

	require.Empty(t, f.engine.Turns())

	var failure *Event
	for failure == nil {
		select {
		case ev := <-events:
			if ev.Type == EventCaptureFailed {
				e := ev
				failure = &e
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no capture failure event")
		}
	}
	require.Equal(t, "I didn't hear anything. Please try again.", failure.Message)
}

func TestConversationEngine_AudioCapture(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{})

	require.NoError(t, f.engine.BeginListening(context.Background(), repositories.AudioConfig{}))
	require.NoError(t, f.engine.Feed(make([]byte, 3000)))
	require.NoError(t, f.engine.StopListening())
	waitIdle(t, f.engine)

	turns := f.engine.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "¿Como estas?", turns[0].Text)
	require.Equal(t, 9.0, turns[1].Analysis.Scores.Pronunciation)
}

func TestConversationEngine_Reset(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mock := tutor.NewMockTutor(0, logger)
	remembering := &fakeTutor{analyze: mock.Analyze}
	f := setupConversation(t, stt.NewMockSpeechInput(logger), remembering, ConversationConfig{})

	say(t, f.engine, "Hola")
	require.Len(t, f.engine.Turns(), 2)

	f.engine.Reset()

	snapshot := f.engine.Snapshot()
	require.Empty(t, snapshot.Turns)
	require.Nil(t, snapshot.LastAnalysis)
	require.Equal(t, ConversationIdle, snapshot.State)
	require.Equal(t, 1, remembering.forgotten)
}

func TestConversationEngine_RewardsPracticeAndActivity(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{PracticeXP: 2})

	_, err := f.ledger.Login(context.Background(), "Ana", "ana@example.com")
	require.NoError(t, err)

	say(t, f.engine, "Hola")

	user, err := f.ledger.Current()
	require.NoError(t, err)
	require.Equal(t, 2, user.XP)
	require.Equal(t, 1, user.Streak)
	require.NotNil(t, user.LastActive)
}

func TestConversationEngine_Speak(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := setupConversation(t, stt.NewMockSpeechInput(logger), tutor.NewMockTutor(0, logger), ConversationConfig{})

	require.ErrorIs(t, f.engine.Speak("  ", ""), entities.ErrValidation)

	require.NoError(t, f.engine.Speak("Buenos días", "es-ES"))
	f.engine.Wait()

	require.Equal(t, []string{"es-ES:Buenos días"}, f.output.Spoken())
	require.Equal(t, ConversationIdle, f.engine.State())
	require.False(t, f.engine.IsSpeaking())

	silent := NewConversationEngine(nil, nil, tutor.NewMockTutor(0, logger), f.ledger, ConversationConfig{}, nil, logger)
	require.ErrorIs(t, silent.Speak("Hola", ""), entities.ErrUnsupportedCapability)
}

// heldTutor answers like the mock tutor once release is closed
func heldTutor(t *testing.T, release <-chan struct{}) *fakeTutor {
	mock := tutor.NewMockTutor(0, zaptest.NewLogger(t))
	return &fakeTutor{analyze: func(ctx context.Context, text string) (entities.TutorReply, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return entities.TutorReply{}, ctx.Err()
		}
		return mock.Analyze(ctx, text)
	}}
}

func waitAnalyzing(t *testing.T, engine *ConversationEngine) {
	t.Helper()
	require.Eventually(t, engine.IsAnalyzing, 5*time.Second, 5*time.Millisecond)
}

func TestConversationEngine_RejectsListeningWhileAnalyzing(t *testing.T) {
	logger := zaptest.NewLogger(t)
	release := make(chan struct{})
	f := setupConversation(t, stt.NewMockSpeechInput(logger), heldTutor(t, release), ConversationConfig{})
	ctx := context.Background()

	require.NoError(t, f.engine.BeginListening(ctx, repositories.AudioConfig{}))
	require.NoError(t, f.engine.FeedTranscript("Hola", true))
	waitAnalyzing(t, f.engine)

	err := f.engine.BeginListening(ctx, repositories.AudioConfig{})
	require.ErrorIs(t, err, entities.ErrInvalidState)
	require.Equal(t, ConversationAnalyzing, f.engine.State())

	close(release)
	waitIdle(t, f.engine)
	require.Len(t, f.engine.Turns(), 2)
}

func TestConversationEngine_LateAnalysisAfterReset(t *testing.T) {
	logger := zaptest.NewLogger(t)
	release := make(chan struct{})
	f := setupConversation(t, stt.NewMockSpeechInput(logger), heldTutor(t, release), ConversationConfig{})

	require.NoError(t, f.engine.BeginListening(context.Background(), repositories.AudioConfig{}))
	require.NoError(t, f.engine.FeedTranscript("Hola", true))
	waitAnalyzing(t, f.engine)

	f.engine.Reset()
	require.Empty(t, f.engine.Turns())
	require.Equal(t, ConversationAnalyzing, f.engine.State(), "reset does not interrupt the analysis")

	close(release)
	waitIdle(t, f.engine)

	turns := f.engine.Turns()
	require.Len(t, turns, 1)
	require.Equal(t, entities.SpeakerTutor, turns[0].Speaker)
	require.NotNil(t, f.engine.LastAnalysis())
}

// gatedInput blocks Start until release is closed
type gatedInput struct {
	entered chan struct{}
	release chan struct{}
	next    repositories.SpeechInput
}

func (g *gatedInput) Start(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechInputStream, error) {
	close(g.entered)
	<-g.release
	return g.next.Start(ctx, config)
}

func TestConversationEngine_SlowCaptureStartDoesNotBlockReaders(t *testing.T) {
	logger := zaptest.NewLogger(t)
	input := &gatedInput{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		next:    stt.NewMockSpeechInput(logger),
	}
	f := setupConversation(t, input, tutor.NewMockTutor(0, logger), ConversationConfig{})
	ctx := context.Background()

	started := make(chan error, 1)
	go func() {
		started <- f.engine.BeginListening(ctx, repositories.AudioConfig{})
	}()
	<-input.entered

	snapshots := make(chan ConversationSnapshot, 1)
	go func() { snapshots <- f.engine.Snapshot() }()
	select {
	case s := <-snapshots:
		require.Equal(t, ConversationIdle, s.State)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot blocked while the capture was opening")
	}

	require.ErrorIs(t, f.engine.BeginListening(ctx, repositories.AudioConfig{}), entities.ErrInvalidState)

	close(input.release)
	require.NoError(t, <-started)
	require.Equal(t, ConversationListening, f.engine.State())
	require.NoError(t, f.engine.CancelListening())
}

// relayOutput behaves like a single-utterance player: a new Speak ends the
// previous utterance, and the live one stays open until finish.
type relayOutput struct {
	mu      sync.Mutex
	seq     int
	current chan repositories.SpeechEvent
}

func (o *relayOutput) Speak(ctx context.Context, text, language string) (<-chan repositories.SpeechEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		o.current <- repositories.SpeechEvent{Type: repositories.SpeechEnd}
		close(o.current)
	}
	o.seq++
	events := make(chan repositories.SpeechEvent, 3)
	events <- repositories.SpeechEvent{Type: repositories.SpeechStart}
	events <- repositories.SpeechEvent{Type: repositories.SpeechAudio, Audio: []byte{byte(o.seq)}}
	o.current = events
	return events, nil
}

func (o *relayOutput) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current <- repositories.SpeechEvent{Type: repositories.SpeechEnd}
		close(o.current)
		o.current = nil
	}
}

func TestConversationEngine_ConcurrentSpeakFollowsLatestUtterance(t *testing.T) {
	logger := zaptest.NewLogger(t)
	output := &relayOutput{}
	ledger := NewLedger(memory.NewStore(), nil, logger)
	engine := NewConversationEngine(nil, output, tutor.NewMockTutor(0, logger), ledger, ConversationConfig{}, nil, logger)

	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	const callers = 16
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- engine.Speak("Hola", "es-ES")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// The last utterance handed out is the live one; its audio must arrive
	timeout := time.After(5 * time.Second)
	for live := false; !live; {
		select {
		case ev := <-events:
			if ev.Type == EventSpeechAudio && ev.Audio[0] == callers {
				live = true
			}
		case <-timeout:
			t.Fatal("audio of the live utterance was dropped")
		}
	}
	require.Eventually(t, engine.IsSpeaking, 2*time.Second, 5*time.Millisecond)

	output.finish()
	engine.Wait()
	require.False(t, engine.IsSpeaking())
}
