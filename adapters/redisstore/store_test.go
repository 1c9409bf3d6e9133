package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/linguaforge/server/domain/entities"
)

// TestStore_Integration requires a running Redis instance (skipped if REDIS_ADDR is not set)
func TestStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test - REDIS_ADDR not set")
	}

	ctx := context.Background()
	key := "linguaforge_test_" + time.Now().Format("150405.000")
	store, err := NewStore(ctx, addr, key, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		store.rdb.Del(ctx, key, store.progressKey("user-1"))
		store.Close(ctx)
	}()

	user, err := entities.NewUser("Ana", "ana@example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("NewUser failed: %v", err)
	}
	if err := store.Save(ctx, user); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.Email != "ana@example.com" {
		t.Errorf("Expected stored user, got %+v", loaded)
	}

	p := entities.NewProgress()
	p.RecordExercise(1, 1, true, time.Now().UTC())
	if err := store.SaveProgress(ctx, "user-1", p); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	lp, err := store.LoadProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProgress failed: %v", err)
	}
	if _, ok := lp.Exercise(1, 1); !ok {
		t.Error("Expected exercise 1-1 to be recorded")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if loaded, _ := store.Load(ctx); loaded != nil {
		t.Errorf("Expected no user after Clear, got %+v", loaded)
	}
}
