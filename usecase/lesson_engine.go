package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

// ExerciseXP is the fixed reward for each correctly answered exercise,
// independent of the lesson's own reward.
const ExerciseXP = 5

// LessonState is the state of the active lesson session
type LessonState string

const (
	LessonNotStarted LessonState = "not_started"
	LessonInProgress LessonState = "in_progress"
	LessonCompleted  LessonState = "completed"
)

// LessonStatus is the advisory unlock status shown on the dashboard
type LessonStatus string

const (
	StatusCompleted LessonStatus = "completed"
	StatusCurrent   LessonStatus = "current"
	StatusLocked    LessonStatus = "locked"
)

// Progression is the part of the Ledger the engines reward through
type Progression interface {
	Current() (*entities.User, error)
	AddXP(ctx context.Context, amount int) (*entities.User, error)
	RecordActivity(ctx context.Context) (*entities.User, error)
}

// AnswerResult is the verdict on a submitted answer
type AnswerResult struct {
	ExerciseID  int    `json:"exercise_id"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
	XPAwarded   int    `json:"xp_awarded"`
}

// LessonSession is a snapshot of the active lesson session
type LessonSession struct {
	LessonID      int                `json:"lesson_id,omitempty"`
	State         LessonState        `json:"state"`
	ExerciseIndex int                `json:"exercise_index"`
	ExerciseCount int                `json:"exercise_count"`
	Exercise      *entities.Exercise `json:"exercise,omitempty"`
	Answered      bool               `json:"answered"`
	LastResult    *AnswerResult      `json:"last_result,omitempty"`
	XPAwarded     int                `json:"xp_awarded"`
}

// LessonEngine runs one lesson at a time:
// NotStarted -> InProgress(exerciseIndex) -> Completed.
type LessonEngine struct {
	mu sync.Mutex

	catalog  repositories.LessonCatalog
	store    repositories.ProgressStore
	ledger   Progression
	now      Clock
	logger   *zap.Logger
	progress *entities.Progress
	owner    string
	// loaded is false while the owner's stored progress could not be read
	loaded bool

	lesson     *entities.Lesson
	state      LessonState
	index      int
	answered   bool
	rewarded   map[int]bool
	lastResult *AnswerResult
	sessionXP  int
}

// NewLessonEngine wires the engine to its catalog, progress store and ledger
func NewLessonEngine(
	catalog repositories.LessonCatalog,
	store repositories.ProgressStore,
	ledger Progression,
	clock Clock,
	logger *zap.Logger,
) *LessonEngine {
	if clock == nil {
		clock = time.Now
	}
	return &LessonEngine{
		catalog:  catalog,
		store:    store,
		ledger:   ledger,
		now:      clock,
		logger:   logger,
		progress: entities.NewProgress(),
		loaded:   true,
		state:    LessonNotStarted,
		rewarded: make(map[int]bool),
	}
}

// Lessons returns the whole catalog
func (e *LessonEngine) Lessons() []entities.Lesson {
	return e.catalog.Lessons()
}

// Lesson resolves a lesson by id
func (e *LessonEngine) Lesson(id int) (*entities.Lesson, error) {
	return e.catalog.Lesson(id)
}

// StartLesson loads a lesson and resets the session to its first exercise.
// Locked lessons are not rejected; the unlock policy is advisory.
func (e *LessonEngine) StartLesson(ctx context.Context, lessonID int) (*LessonSession, error) {
	lesson, err := e.catalog.Lesson(lessonID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncProgress(ctx)
	if !e.isUnlocked(lessonID) {
		e.logger.Warn("Starting a locked lesson", zap.Int("lessonID", lessonID))
	}

	e.resetSession()
	e.lesson = lesson
	e.state = LessonInProgress

	e.logger.Info("Lesson started",
		zap.Int("lessonID", lesson.ID),
		zap.String("title", lesson.Title),
		zap.Int("exercises", len(lesson.Exercises)))

	return e.snapshot(), nil
}

// SubmitAnswer grades the answer to the current exercise and records it.
// Resubmitting before Advance re-grades and overwrites the progress entry;
// the per-exercise reward is still granted at most once.
func (e *LessonEngine) SubmitAnswer(ctx context.Context, exerciseID int, answer entities.Answer) (*AnswerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncProgress(ctx)
	if e.state != LessonInProgress {
		return nil, entities.InvalidState("submit answer", e.state)
	}

	exercise, err := e.lesson.Exercise(exerciseID)
	if err != nil {
		return nil, err
	}
	current := &e.lesson.Exercises[e.index]
	if exercise.ID != current.ID {
		return nil, entities.InvalidState(fmt.Sprintf("answer exercise %d while on exercise %d", exerciseID, current.ID), e.state)
	}

	correct, err := exercise.Check(answer)
	if err != nil {
		return nil, err
	}

	e.progress.RecordExercise(e.lesson.ID, exercise.ID, correct, e.now())
	e.saveProgress(ctx)

	result := &AnswerResult{
		ExerciseID:  exercise.ID,
		Correct:     correct,
		Explanation: exercise.Feedback(),
	}
	if correct && !e.rewarded[exercise.ID] {
		e.rewarded[exercise.ID] = true
		if e.reward(ctx, ExerciseXP) {
			result.XPAwarded = ExerciseXP
		}
	}

	e.answered = true
	e.lastResult = result

	e.logger.Info("Answer submitted",
		zap.Int("lessonID", e.lesson.ID),
		zap.Int("exerciseID", exercise.ID),
		zap.Bool("correct", correct))

	return result, nil
}

// Advance moves to the next exercise, or completes the lesson after the last one
func (e *LessonEngine) Advance(ctx context.Context) (*LessonSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncProgress(ctx)
	if e.state != LessonInProgress {
		return nil, entities.InvalidState("advance", e.state)
	}
	if !e.answered {
		return nil, entities.InvalidState("advance before answering", e.state)
	}

	if e.index < len(e.lesson.Exercises)-1 {
		e.index++
		e.answered = false
		e.lastResult = nil
		e.logger.Info("Advanced to next exercise",
			zap.Int("lessonID", e.lesson.ID),
			zap.Int("exerciseIndex", e.index))
		return e.snapshot(), nil
	}

	e.state = LessonCompleted
	e.progress.RecordLesson(e.lesson.ID, e.now())
	e.saveProgress(ctx)
	e.reward(ctx, e.lesson.XP)

	e.logger.Info("Lesson completed",
		zap.Int("lessonID", e.lesson.ID),
		zap.Int("xpReward", e.lesson.XP),
		zap.Int("sessionXP", e.sessionXP))

	return e.snapshot(), nil
}

// Session returns a snapshot of the active session. A session started by
// another learner is not visible.
func (e *LessonEngine) Session(ctx context.Context) *LessonSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncProgress(ctx)
	return e.snapshot()
}

// Reset abandons the active session, e.g. on logout
func (e *LessonEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lesson != nil {
		e.logger.Info("Lesson session reset", zap.Int("lessonID", e.lesson.ID), zap.String("state", string(e.state)))
	}
	e.resetSession()
}

// CompletedLessons counts the catalog lessons the learner has finished
func (e *LessonEngine) CompletedLessons(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncProgress(ctx)
	return e.completedLessons()
}

// Progress returns a copy of the learner's progress
func (e *LessonEngine) Progress(ctx context.Context) *entities.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncProgress(ctx)
	return e.progress.Clone()
}

// ProgressPercentage is the share of catalog lessons completed, rounded
func (e *LessonEngine) ProgressPercentage(ctx context.Context) int {
	lessons := e.catalog.Lessons()
	if len(lessons) == 0 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncProgress(ctx)

	return int(math.Round(100 * float64(e.completedLessons()) / float64(len(lessons))))
}

func (e *LessonEngine) completedLessons() int {
	completed := 0
	for _, l := range e.catalog.Lessons() {
		if e.progress.LessonCompleted(l.ID) {
			completed++
		}
	}
	return completed
}

// Status derives the dashboard status of a lesson
func (e *LessonEngine) Status(ctx context.Context, lessonID int) (LessonStatus, error) {
	if _, err := e.catalog.Lesson(lessonID); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncProgress(ctx)

	if e.progress.LessonCompleted(lessonID) {
		return StatusCompleted, nil
	}
	if e.isUnlocked(lessonID) {
		return StatusCurrent, nil
	}
	return StatusLocked, nil
}

// IsUnlocked reports whether lesson n is the first lesson or follows a completed one
func (e *LessonEngine) IsUnlocked(ctx context.Context, lessonID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncProgress(ctx)
	return e.isUnlocked(lessonID)
}

func (e *LessonEngine) isUnlocked(lessonID int) bool {
	lessons := e.catalog.Lessons()
	for i, l := range lessons {
		if l.ID != lessonID {
			continue
		}
		if i == 0 {
			return true
		}
		return e.progress.LessonCompleted(lessons[i-1].ID)
	}
	return false
}

func (e *LessonEngine) snapshot() *LessonSession {
	s := &LessonSession{
		State:     e.state,
		XPAwarded: e.sessionXP,
	}
	if e.lesson == nil {
		return s
	}
	s.LessonID = e.lesson.ID
	s.ExerciseIndex = e.index
	s.ExerciseCount = len(e.lesson.Exercises)
	s.Answered = e.answered
	if e.state == LessonInProgress {
		ex := e.lesson.Exercises[e.index]
		s.Exercise = &ex
	}
	if e.lastResult != nil {
		r := *e.lastResult
		s.LastResult = &r
	}
	return s
}

// reward grants XP through the ledger. Failures are logged and never leave
// the session stuck.
func (e *LessonEngine) reward(ctx context.Context, amount int) bool {
	if _, err := e.ledger.AddXP(ctx, amount); err != nil {
		if errors.Is(err, entities.ErrNoActiveUser) {
			e.logger.Warn("XP not awarded: no active user", zap.Int("amount", amount))
		} else {
			e.logger.Error("Failed to award XP", zap.Int("amount", amount), zap.Error(err))
		}
		return false
	}
	e.sessionXP += amount
	return true
}

// resetSession must be called with e.mu held.
func (e *LessonEngine) resetSession() {
	e.lesson = nil
	e.state = LessonNotStarted
	e.index = 0
	e.answered = false
	e.rewarded = make(map[int]bool)
	e.lastResult = nil
	e.sessionXP = 0
}

// syncProgress follows the active user. When the user changes, the running
// session is dropped and the new user's progress is loaded. A failed load is
// retried on the next call and nothing is saved until it succeeds.
// Must be called with e.mu held.
func (e *LessonEngine) syncProgress(ctx context.Context) {
	userID := ""
	if user, err := e.ledger.Current(); err == nil {
		userID = user.ID
	}
	if userID != e.owner {
		if e.lesson != nil {
			e.logger.Info("Dropping lesson session of previous learner",
				zap.String("previousUserID", e.owner),
				zap.Int("lessonID", e.lesson.ID))
		}
		e.resetSession()
		e.owner = userID
		e.progress = entities.NewProgress()
		e.loaded = userID == ""
	}
	if e.loaded {
		return
	}

	stored, err := e.store.LoadProgress(ctx, userID)
	if err != nil {
		e.logger.Error("Failed to load progress", zap.String("userID", userID), zap.Error(err))
		return
	}
	if stored == nil {
		stored = entities.NewProgress()
	}
	// Completions recorded while the load was failing win over stored entries.
	pending := !e.progress.Empty()
	stored.Merge(e.progress)
	e.progress = stored
	e.loaded = true
	if pending {
		e.saveProgress(ctx)
	}
}

func (e *LessonEngine) saveProgress(ctx context.Context) {
	if e.owner == "" {
		return
	}
	if !e.loaded {
		e.logger.Warn("Progress kept in memory until it can be loaded", zap.String("userID", e.owner))
		return
	}
	if err := e.store.SaveProgress(ctx, e.owner, e.progress); err != nil {
		e.logger.Error("Failed to save progress", zap.String("userID", e.owner), zap.Error(err))
	}
}
