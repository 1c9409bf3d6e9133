package api

import (
	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/usecase"
)

// LoginRequest represents the request payload for starting a learner session
type LoginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateProfileRequest carries the profile fields to change. Omitted fields are kept.
type UpdateProfileRequest struct {
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Languages *[]string `json:"languages,omitempty"`
}

// AnswerRequest represents an answer to the current exercise
type AnswerRequest struct {
	ExerciseID int             `json:"exercise_id"`
	Selection  entities.Answer `json:"selection"`
}

// SubscribeRequest selects a plan
type SubscribeRequest struct {
	Plan entities.SubscriptionTier `json:"plan"`
}

// SubscribeResponse is the updated user plus the payment receipt
type SubscribeResponse struct {
	User    *entities.User           `json:"user"`
	Receipt *entities.PaymentReceipt `json:"receipt"`
}

// LessonSummary is a catalog entry with its dashboard status
type LessonSummary struct {
	ID            int                  `json:"id"`
	Title         string               `json:"title"`
	Language      string               `json:"language"`
	Difficulty    string               `json:"difficulty"`
	XP            int                  `json:"xp"`
	ExerciseCount int                  `json:"exercise_count"`
	Status        usecase.LessonStatus `json:"status"`
}

// DashboardResponse aggregates what the dashboard renders
type DashboardResponse struct {
	User               *entities.User         `json:"user"`
	ProgressPercentage int                    `json:"progress_percentage"`
	LessonsCompleted   int                    `json:"lessons_completed"`
	Achievements       []entities.Achievement `json:"achievements"`
	Lessons            []LessonSummary        `json:"lessons"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
