package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.Store = (*Store)(nil)

// record is one JSON document row
type record struct {
	Key       string    `db:"key"`
	Data      string    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store keeps the learner record and progress as JSON documents in SQLite
type Store struct {
	db     *sqlx.DB
	key    string
	logger *zap.Logger
}

// NewStore opens (or creates) the database at path. The user record is kept
// under key.
func NewStore(path, key string, logger *zap.Logger) (*Store, error) {
	if key == "" {
		key = repositories.DefaultStorageKey
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, key: key, logger: logger}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store ready", zap.String("path", path), zap.String("key", key))
	return s, nil
}

func (s *Store) initializeSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS progress (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create progress table: %w", err)
	}
	return nil
}

// Load implements repositories.UserStore
func (s *Store) Load(ctx context.Context) (*entities.User, error) {
	var row record
	err := s.db.GetContext(ctx, &row, `SELECT key, data, updated_at FROM users WHERE key = ?`, s.key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var user entities.User
	if err := json.Unmarshal([]byte(row.Data), &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Save implements repositories.UserStore
func (s *Store) Save(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	return s.upsert(ctx, "users", s.key, user)
}

// Clear implements repositories.UserStore
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("failed to clear user: %w", err)
	}
	return nil
}

// LoadProgress implements repositories.ProgressStore
func (s *Store) LoadProgress(ctx context.Context, userID string) (*entities.Progress, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	var row record
	err := s.db.GetContext(ctx, &row, `SELECT key, data, updated_at FROM progress WHERE key = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.NewProgress(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	progress := entities.NewProgress()
	if err := json.Unmarshal([]byte(row.Data), progress); err != nil {
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
	return s.upsert(ctx, "progress", userID, progress)
}

// Close implements repositories.Store
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *Store) upsert(ctx context.Context, table, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", table, err)
	}

	row := record{Key: key, Data: string(data), UpdatedAt: time.Now().UTC()}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, data, updated_at) VALUES (:key, :data, :updated_at)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, table)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		s.logger.Error("Failed to write record", zap.String("table", table), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to save %s record: %w", table, err)
	}
	return nil
}
