package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.Store = (*Store)(nil)

// Store is an in-memory storage backend. Nothing survives a restart.
type Store struct {
	mu       sync.RWMutex
	user     *entities.User
	progress map[string]*entities.Progress // user id -> progress
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		progress: make(map[string]*entities.Progress),
	}
}

// Load implements repositories.UserStore
func (s *Store) Load(ctx context.Context) (*entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil, nil
	}
	// Return a copy to prevent external modifications
	return s.user.Clone(), nil
}

// Save implements repositories.UserStore
func (s *Store) Save(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = user.Clone()
	return nil
}

// Clear implements repositories.UserStore
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	return nil
}

// LoadProgress implements repositories.ProgressStore
func (s *Store) LoadProgress(ctx context.Context, userID string) (*entities.Progress, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.progress[userID]
	if !exists {
		return entities.NewProgress(), nil
	}
	return p.Clone(), nil
}

// SaveProgress implements repositories.ProgressStore
func (s *Store) SaveProgress(ctx context.Context, userID string, progress *entities.Progress) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if progress == nil {
		return errors.New("progress cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[userID] = progress.Clone()
	return nil
}

// Close implements repositories.Store
func (s *Store) Close(ctx context.Context) error {
	return nil
}
