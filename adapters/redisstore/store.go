package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.Store = (*Store)(nil)

// Store keeps the learner record as a JSON string under the storage key and
// each user's progress under "<key>:progress:<userID>".
type Store struct {
	rdb    *goredis.Client
	key    string
	logger *zap.Logger
}

// NewStore connects to Redis at addr and verifies the connection
func NewStore(ctx context.Context, addr, key string, logger *zap.Logger) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if key == "" {
		key = repositories.DefaultStorageKey
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", addr), zap.String("key", key))
	return &Store{rdb: rdb, key: key, logger: logger}, nil
}

func (s *Store) progressKey(userID string) string {
	return fmt.Sprintf("%s:progress:%s", s.key, userID)
}

// Load implements repositories.UserStore
func (s *Store) Load(ctx context.Context) (*entities.User, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var user entities.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Save implements repositories.UserStore
func (s *Store) Save(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		s.logger.Error("Failed to save user", zap.String("userID", user.ID), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Clear implements repositories.UserStore
func (s *Store) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear user: %w", err)
	}
	return nil
}

// LoadProgress implements repositories.ProgressStore
func (s *Store) LoadProgress(ctx context.Context, userID string) (*entities.Progress, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	raw, err := s.rdb.Get(ctx, s.progressKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return entities.NewProgress(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	progress := entities.NewProgress()
	if err := json.Unmarshal(raw, progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return progress, nil
}

// SaveProgress implements repositories.ProgressStore
func (s *Store) SaveProgress(ctx context.Context, userID string, progress *entities.Progress) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if progress == nil {
		return errors.New("progress cannot be nil")
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := s.rdb.Set(ctx, s.progressKey(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// Close implements repositories.Store
func (s *Store) Close(ctx context.Context) error {
	return s.rdb.Close()
}
