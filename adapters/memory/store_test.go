package memory

import (
	"context"
	"testing"
	"time"

	"github.com/linguaforge/server/domain/entities"
)

func TestStore_UserRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load on empty store failed: %v", err)
	}
	if user != nil {
		t.Errorf("Expected no user, got %+v", user)
	}

	created, err := entities.NewUser("Ana", "ana@example.com", time.Now())
	if err != nil {
		t.Fatalf("NewUser failed: %v", err)
	}
	if err := store.Save(ctx, created); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store
	created.XP = 999

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != created.ID {
		t.Errorf("Expected ID %s, got %s", created.ID, loaded.ID)
	}
	if loaded.XP != 0 {
		t.Errorf("Expected stored XP 0, got %d", loaded.XP)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	loaded, _ = store.Load(ctx)
	if loaded != nil {
		t.Errorf("Expected no user after Clear, got %+v", loaded)
	}
}

func TestStore_Progress(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	p, err := store.LoadProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProgress failed: %v", err)
	}
	if len(p.Exercises) != 0 || len(p.Lessons) != 0 {
		t.Errorf("Expected empty progress, got %+v", p)
	}

	p.RecordExercise(1, 2, true, time.Now())
	p.RecordLesson(1, time.Now())
	if err := store.SaveProgress(ctx, "user-1", p); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	loaded, err := store.LoadProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProgress failed: %v", err)
	}
	if !loaded.LessonCompleted(1) {
		t.Error("Expected lesson 1 to be completed")
	}
	if e, ok := loaded.Exercise(1, 2); !ok || !e.Correct {
		t.Errorf("Expected exercise 1-2 correct, got %+v (found=%v)", e, ok)
	}

	other, _ := store.LoadProgress(ctx, "user-2")
	if other.LessonCompleted(1) {
		t.Error("Progress leaked across users")
	}

	if _, err := store.LoadProgress(ctx, ""); err == nil {
		t.Error("Expected error for empty user ID")
	}
}
