package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/linguaforge/server/adapters/memory"
	"github.com/linguaforge/server/domain/entities"
)

// testClock is a settable clock for deterministic streak tests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func setupLedger(t *testing.T) (*Ledger, *memory.Store, *testClock) {
	store := memory.NewStore()
	clock := newTestClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	return NewLedger(store, clock.Now, zaptest.NewLogger(t)), store, clock
}

func TestLedger_Login(t *testing.T) {
	ledger, store, clock := setupLedger(t)
	ctx := context.Background()

	user, err := ledger.Login(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, 0, user.XP)
	require.Equal(t, 1, user.Level)
	require.Equal(t, 0, user.Streak)
	require.Equal(t, entities.TierFree, user.Subscription)
	require.Equal(t, "https://api.dicebear.com/7.x/avataaars/svg?seed=Ana", user.Avatar)
	require.Equal(t, clock.Now(), user.JoinedAt)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID, stored.ID)

	_, err = ledger.Login(ctx, "", "ana@example.com")
	require.ErrorIs(t, err, entities.ErrValidation)
}

func TestLedger_AddXP(t *testing.T) {
	ledger, store, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.AddXP(ctx, 5)
	require.ErrorIs(t, err, entities.ErrNoActiveUser)

	_, err = ledger.Login(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)

	user, err := ledger.AddXP(ctx, 95)
	require.NoError(t, err)
	require.Equal(t, 95, user.XP)
	require.Equal(t, 1, user.Level)

	user, err = ledger.AddXP(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 105, user.XP)
	require.Equal(t, 2, user.Level)

	_, err = ledger.AddXP(ctx, 0)
	require.ErrorIs(t, err, entities.ErrValidation)
	_, err = ledger.AddXP(ctx, -3)
	require.ErrorIs(t, err, entities.ErrValidation)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 105, stored.XP)
	require.Equal(t, 2, stored.Level)
}

func TestLedger_RecordActivity(t *testing.T) {
	ledger, _, clock := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordActivity(ctx)
	require.ErrorIs(t, err, entities.ErrNoActiveUser)

	_, err = ledger.Login(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)

	user, err := ledger.RecordActivity(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, user.Streak)

	// Same calendar day: no change
	clock.Set(time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC))
	user, err = ledger.RecordActivity(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, user.Streak)

	// Next day extends the streak
	clock.Set(time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC))
	user, err = ledger.RecordActivity(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, user.Streak)

	// A missed day restarts it
	clock.Set(time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC))
	user, err = ledger.RecordActivity(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, user.Streak)
	require.Equal(t, clock.Now(), *user.LastActive)
}

func TestLedger_RestoreAndLogout(t *testing.T) {
	ledger, store, clock := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Restore(ctx)
	require.ErrorIs(t, err, entities.ErrNoActiveUser)

	original, err := ledger.Login(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)
	_, err = ledger.AddXP(ctx, 150)
	require.NoError(t, err)

	restarted := NewLedger(store, clock.Now, zaptest.NewLogger(t))
	restored, err := restarted.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, original.ID, restored.ID)
	require.Equal(t, 150, restored.XP)
	require.Equal(t, 2, restored.Level)

	require.NoError(t, restarted.Logout(ctx))
	_, err = restarted.Current()
	require.ErrorIs(t, err, entities.ErrNoActiveUser)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestLedger_Update(t *testing.T) {
	ledger, _, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Update(ctx, func(u *entities.User) {})
	require.ErrorIs(t, err, entities.ErrNoActiveUser)

	_, err = ledger.Login(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)

	user, err := ledger.Update(ctx, func(u *entities.User) {
		u.Languages = []string{"es", "fr"}
		u.Level = 42
	})
	require.NoError(t, err)
	require.Equal(t, []string{"es", "fr"}, user.Languages)
	require.Equal(t, 1, user.Level, "level is derived from xp")

	_, err = ledger.Update(ctx, func(u *entities.User) { u.Name = "" })
	require.ErrorIs(t, err, entities.ErrValidation)

	current, err := ledger.Current()
	require.NoError(t, err)
	require.Equal(t, "Ana", current.Name)

	// Returned copies do not alias ledger state
	current.Languages[0] = "de"
	again, err := ledger.Current()
	require.NoError(t, err)
	require.Equal(t, "es", again.Languages[0])
}

// brokenStore fails every Save while broken is set
type brokenStore struct {
	*memory.Store
	broken bool
}

func (s *brokenStore) Save(ctx context.Context, user *entities.User) error {
	if s.broken {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, user)
}

func TestLedger_FailedSaveLeavesUserUnchanged(t *testing.T) {
	store := &brokenStore{Store: memory.NewStore()}
	ledger := NewLedger(store, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := ledger.Login(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)
	_, err = ledger.AddXP(ctx, 40)
	require.NoError(t, err)

	store.broken = true

	_, err = ledger.AddXP(ctx, 80)
	require.Error(t, err)
	_, err = ledger.RecordActivity(ctx)
	require.Error(t, err)
	_, err = ledger.Update(ctx, func(u *entities.User) { u.Name = "Ann" })
	require.Error(t, err)

	user, err := ledger.Current()
	require.NoError(t, err)
	require.Equal(t, 40, user.XP)
	require.Equal(t, 1, user.Level)
	require.Zero(t, user.Streak)
	require.Nil(t, user.LastActive)
	require.Equal(t, "Ana", user.Name)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, user.XP, stored.XP)

	// A failed login keeps the previous learner active
	_, err = ledger.Login(ctx, "Ben", "ben@example.com")
	require.Error(t, err)
	user, err = ledger.Current()
	require.NoError(t, err)
	require.Equal(t, "Ana", user.Name)
}
