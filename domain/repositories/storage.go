package repositories

import (
	"context"

	"github.com/linguaforge/server/domain/entities"
)

// DefaultStorageKey is the fixed application identifier the user record is kept under.
const DefaultStorageKey = "linguaforge_user"

// UserStore is the durable home of the single learner record. Writes are
// last-writer-wins; there is no conflict resolution.
type UserStore interface {
	// Load returns the stored user, or nil without error when none is stored
	Load(ctx context.Context) (*entities.User, error)
	Save(ctx context.Context, user *entities.User) error
	// Clear removes the stored user (logout)
	Clear(ctx context.Context) error
}

// ProgressStore keeps lesson progress per user
type ProgressStore interface {
	// LoadProgress returns an empty progress record when nothing is stored
	LoadProgress(ctx context.Context, userID string) (*entities.Progress, error)
	SaveProgress(ctx context.Context, userID string, progress *entities.Progress) error
}

// Store is implemented by every storage backend
type Store interface {
	UserStore
	ProgressStore
	Close(ctx context.Context) error
}

// LessonCatalog is the read-only source of lesson content
type LessonCatalog interface {
	// Lessons returns all lessons ordered by id
	Lessons() []entities.Lesson
	// Lesson resolves a lesson or returns entities.ErrNotFound
	Lesson(id int) (*entities.Lesson, error)
}
