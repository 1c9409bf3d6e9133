package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/linguaforge/server/adapters/catalog"
	"github.com/linguaforge/server/adapters/memory"
	"github.com/linguaforge/server/adapters/mongo"
	"github.com/linguaforge/server/adapters/payment"
	"github.com/linguaforge/server/adapters/redisstore"
	"github.com/linguaforge/server/adapters/sqlite"
	"github.com/linguaforge/server/adapters/stt"
	"github.com/linguaforge/server/adapters/tts"
	"github.com/linguaforge/server/adapters/tutor"
	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
	"github.com/linguaforge/server/internal/api"
	"github.com/linguaforge/server/internal/config"
	"github.com/linguaforge/server/internal/websocket"
	"github.com/linguaforge/server/usecase"
)

// mockChunkDelay paces mock speech output at roughly real-time 24kHz PCM
const mockChunkDelay = 80 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize adapters
	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	lessons, err := newCatalog(cfg)
	if err != nil {
		logger.Fatal("Failed to load lesson catalog", zap.Error(err))
	}

	speechInput := newSpeechInput(cfg, logger)
	speechOutput, err := newSpeechOutput(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech output", zap.Error(err))
	}
	tutorProvider, err := newTutor(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tutor", zap.Error(err))
	}

	// Initialize usecase services
	ledger := usecase.NewLedger(store, nil, logger)
	if user, err := ledger.Restore(ctx); err == nil {
		logger.Info("Resuming learner session", zap.String("userID", user.ID))
	} else if !errors.Is(err, entities.ErrNoActiveUser) {
		logger.Fatal("Failed to restore learner", zap.Error(err))
	}

	lessonEngine := usecase.NewLessonEngine(lessons, store, ledger, nil, logger)
	conversation := usecase.NewConversationEngine(
		speechInput,
		speechOutput,
		tutorProvider,
		ledger,
		usecase.ConversationConfig{
			Language:        cfg.LearningLanguage,
			VoiceLanguage:   cfg.TutorVoiceLanguage,
			AnalysisTimeout: cfg.AnalysisTimeout,
			PracticeXP:      cfg.PracticeXP,
		},
		nil,
		logger,
	)
	profile := usecase.NewProfileService(ledger, lessonEngine, logger)
	subscriptions := usecase.NewSubscriptionService(payment.NewMockGateway(cfg.PaymentDelay, logger), ledger, nil, logger)

	// Initialize WebSocket hub with the conversation engine
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := websocket.NewHub(conversation, logger)
	go hub.Run(hubCtx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Services{
		Ledger:        ledger,
		Lessons:       lessonEngine,
		Conversation:  conversation,
		Subscriptions: subscriptions,
		Profile:       profile,
		Hub:           hub,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
		zap.String("speechInput", cfg.SpeechInput),
		zap.String("speechOutput", cfg.SpeechOutput),
		zap.String("tutor", cfg.Tutor))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopHub()
	if player, ok := speechOutput.(*tts.Player); ok {
		player.Stop()
	}
	conversation.Wait()

	logger.Info("Server exited")
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, cfg.StorageKey, logger)
	case config.StorageMongo:
		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		return mongo.NewStore(client, cfg.StorageKey, logger), nil
	case config.StorageRedis:
		return redisstore.NewStore(ctx, cfg.RedisAddr, cfg.StorageKey, logger)
	default:
		return memory.NewStore(), nil
	}
}

func newCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.LessonsFile != "" {
		return catalog.NewFromFile(cfg.LessonsFile)
	}
	return catalog.NewEmbedded()
}

// newSpeechInput returns nil when the host has no speech-input capability
func newSpeechInput(cfg *config.Config, logger *zap.Logger) repositories.SpeechInput {
	switch cfg.SpeechInput {
	case config.ProviderGoogle:
		return stt.NewGoogleSpeechInput(logger)
	case config.ProviderNone:
		return nil
	default:
		return stt.NewMockSpeechInput(logger)
	}
}

func newSpeechOutput(cfg *config.Config, logger *zap.Logger) (repositories.SpeechOutput, error) {
	switch cfg.SpeechOutput {
	case config.ProviderElevenLabs:
		synth, err := tts.NewElevenLabsTTS(cfg.ElevenLabs, logger)
		if err != nil {
			return nil, err
		}
		return tts.NewPlayer(synth, logger), nil
	case config.ProviderNone:
		return nil, nil
	default:
		return tts.NewPlayer(tts.NewMockSynthesizer(mockChunkDelay, logger), logger), nil
	}
}

func newTutor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Tutor, error) {
	if cfg.Tutor == config.ProviderGemini {
		return tutor.NewGeminiTutor(ctx, cfg.Gemini, logger)
	}
	return tutor.NewMockTutor(cfg.TutorDelay, logger), nil
}
