package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Ledger owns the learner record: identity, XP, level and streak. Every
// mutation persists the full record to the user store.
type Ledger struct {
	mu     sync.Mutex
	store  repositories.UserStore
	user   *entities.User
	now    Clock
	logger *zap.Logger
}

// NewLedger creates a ledger backed by store. A nil clock means time.Now.
func NewLedger(store repositories.UserStore, clock Clock, logger *zap.Logger) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		store:  store,
		now:    clock,
		logger: logger,
	}
}

// Restore loads a previously persisted user, if any
func (l *Ledger) Restore(ctx context.Context) (*entities.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	l.user = user
	if user == nil {
		l.logger.Info("No stored user found")
		return nil, entities.ErrNoActiveUser
	}

	// Level is derived; repair records written by older clients.
	user.Level = entities.LevelForXP(user.XP)
	l.logger.Info("User restored", zap.String("userID", user.ID), zap.Int("xp", user.XP))
	return user.Clone(), nil
}

// Login creates a new learner and makes it the active user
func (l *Ledger) Login(ctx context.Context, name, email string) (*entities.User, error) {
	user, err := entities.NewUser(name, email, l.now())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.persist(ctx, user); err != nil {
		return nil, err
	}
	l.user = user
	l.logger.Info("User logged in", zap.String("userID", user.ID), zap.String("name", user.Name))
	return user.Clone(), nil
}

// Logout forgets the active user and clears the store
func (l *Ledger) Logout(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.user = nil
	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear user store: %w", err)
	}
	l.logger.Info("User logged out")
	return nil
}

// Current returns a copy of the active user
func (l *Ledger) Current() (*entities.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.user == nil {
		return nil, entities.ErrNoActiveUser
	}
	return l.user.Clone(), nil
}

// Update applies a profile mutation and persists the result
func (l *Ledger) Update(ctx context.Context, mutate func(u *entities.User)) (*entities.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.user == nil {
		return nil, entities.ErrNoActiveUser
	}

	updated := l.user.Clone()
	mutate(updated)
	// Progression fields are owned by the ledger.
	updated.Level = entities.LevelForXP(updated.XP)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := l.persist(ctx, updated); err != nil {
		return nil, err
	}
	l.user = updated
	return updated.Clone(), nil
}

// AddXP increases experience and recomputes the level
func (l *Ledger) AddXP(ctx context.Context, amount int) (*entities.User, error) {
	if amount <= 0 {
		return nil, entities.Validation("xp amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.user == nil {
		return nil, entities.ErrNoActiveUser
	}

	updated := l.user.Clone()
	updated.XP += amount
	updated.Level = entities.LevelForXP(updated.XP)

	if err := l.persist(ctx, updated); err != nil {
		return nil, err
	}
	previousLevel := l.user.Level
	l.user = updated

	l.logger.Info("XP added",
		zap.String("userID", updated.ID),
		zap.Int("amount", amount),
		zap.Int("xp", updated.XP),
		zap.Int("level", updated.Level))
	if updated.Level > previousLevel {
		l.logger.Info("Level up", zap.String("userID", updated.ID), zap.Int("level", updated.Level))
	}
	return updated.Clone(), nil
}

// RecordActivity updates the daily streak. Only the first call of a calendar
// day changes anything.
func (l *Ledger) RecordActivity(ctx context.Context) (*entities.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.user == nil {
		return nil, entities.ErrNoActiveUser
	}

	now := l.now()
	today := calendarDay(now, now.Location())
	if l.user.LastActive != nil && calendarDay(*l.user.LastActive, now.Location()).Equal(today) {
		return l.user.Clone(), nil
	}

	updated := l.user.Clone()
	yesterday := today.AddDate(0, 0, -1)
	if updated.LastActive != nil && calendarDay(*updated.LastActive, now.Location()).Equal(yesterday) {
		updated.Streak++
	} else {
		updated.Streak = 1
	}
	updated.LastActive = &now

	if err := l.persist(ctx, updated); err != nil {
		return nil, err
	}
	l.user = updated

	l.logger.Info("Activity recorded",
		zap.String("userID", updated.ID),
		zap.Int("streak", updated.Streak))
	return updated.Clone(), nil
}

// persist saves user before it replaces the in-memory record, so a failed
// write leaves the ledger unchanged. Must be called with l.mu held.
func (l *Ledger) persist(ctx context.Context, user *entities.User) error {
	if err := l.store.Save(ctx, user); err != nil {
		l.logger.Error("Failed to persist user", zap.String("userID", user.ID), zap.Error(err))
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}

// calendarDay truncates t to midnight of its date in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
