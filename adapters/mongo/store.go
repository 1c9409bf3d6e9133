package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.Store = (*Store)(nil)

type userDocument struct {
	Key       string         `bson:"_id"`
	User      *entities.User `bson:"user"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type progressDocument struct {
	UserID    string             `bson:"_id"`
	Progress  *entities.Progress `bson:"progress"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// Store keeps the learner record in the users collection under the storage
// key and one progress document per user.
type Store struct {
	client   *Client
	users    *mongo.Collection
	progress *mongo.Collection
	key      string
	logger   *zap.Logger
}

// NewStore creates a store on top of an open client
func NewStore(client *Client, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = repositories.DefaultStorageKey
	}
	return &Store{
		client:   client,
		users:    client.Database.Collection("users"),
		progress: client.Database.Collection("progress"),
		key:      key,
		logger:   logger,
	}
}

// Load implements repositories.UserStore
func (s *Store) Load(ctx context.Context) (*entities.User, error) {
	var doc userDocument
	err := s.users.FindOne(ctx, bson.M{"_id": s.key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return doc.User, nil
}

// Save implements repositories.UserStore
func (s *Store) Save(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}

	doc := userDocument{Key: s.key, User: user, UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.users.ReplaceOne(ctx, bson.M{"_id": s.key}, doc, opts); err != nil {
		s.logger.Error("Failed to save user", zap.String("userID", user.ID), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Clear implements repositories.UserStore
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.users.DeleteOne(ctx, bson.M{"_id": s.key}); err != nil {
		return fmt.Errorf("failed to clear user: %w", err)
	}
	return nil
}

// LoadProgress implements repositories.ProgressStore
func (s *Store) LoadProgress(ctx context.Context, userID string) (*entities.Progress, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	var doc progressDocument
	err := s.progress.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.NewProgress(), nil
		}
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if doc.Progress == nil {
		return entities.NewProgress(), nil
	}
	return doc.Progress.Clone(), nil
}

// SaveProgress implements repositories.ProgressStore
func (s *Store) SaveProgress(ctx context.Context, userID string, progress *entities.Progress) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if progress == nil {
		return errors.New("progress cannot be nil")
	}

	doc := progressDocument{UserID: userID, Progress: progress, UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.progress.ReplaceOne(ctx, bson.M{"_id": userID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// Close implements repositories.Store
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
