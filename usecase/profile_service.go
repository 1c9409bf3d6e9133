package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
)

// LessonTally is the part of the LessonEngine profile stats are read from
type LessonTally interface {
	CompletedLessons(ctx context.Context) int
	ProgressPercentage(ctx context.Context) int
}

// ProfileStats are the learner's headline numbers
type ProfileStats struct {
	XP                 int                    `json:"xp"`
	Level              int                    `json:"level"`
	Streak             int                    `json:"streak"`
	LessonsCompleted   int                    `json:"lessons_completed"`
	ProgressPercentage int                    `json:"progress_percentage"`
	Achievements       []entities.Achievement `json:"achievements"`
}

// ProfileService derives stats and achievements from the ledger and lesson progress
type ProfileService struct {
	ledger  Progression
	lessons LessonTally
	logger  *zap.Logger
}

// NewProfileService creates the service
func NewProfileService(ledger Progression, lessons LessonTally, logger *zap.Logger) *ProfileService {
	return &ProfileService{ledger: ledger, lessons: lessons, logger: logger}
}

// Stats returns the active learner's stats and achievements
func (s *ProfileService) Stats(ctx context.Context) (*ProfileStats, error) {
	user, err := s.ledger.Current()
	if err != nil {
		return nil, err
	}

	completed := s.lessons.CompletedLessons(ctx)
	stats := &ProfileStats{
		XP:                 user.XP,
		Level:              user.Level,
		Streak:             user.Streak,
		LessonsCompleted:   completed,
		ProgressPercentage: s.lessons.ProgressPercentage(ctx),
		Achievements:       entities.Achievements(user, completed),
	}

	unlocked := 0
	for _, a := range stats.Achievements {
		if a.Unlocked {
			unlocked++
		}
	}
	s.logger.Debug("Profile stats computed",
		zap.String("userID", user.ID),
		zap.Int("lessonsCompleted", completed),
		zap.Int("achievementsUnlocked", unlocked))
	return stats, nil
}

// Achievements returns only the achievement list
func (s *ProfileService) Achievements(ctx context.Context) ([]entities.Achievement, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return stats.Achievements, nil
}
