package entities

import "testing"

func TestAchievementsForNewLearner(t *testing.T) {
	achievements := Achievements(&User{Level: 1}, 0)

	if len(achievements) != 4 {
		t.Fatalf("Expected 4 achievements, got %d", len(achievements))
	}
	for _, a := range achievements {
		if a.Unlocked {
			t.Errorf("Expected %s to be locked", a.Title)
		}
	}
	if achievements[3].Progress != 1 {
		t.Errorf("Expected level progress 1, got %d", achievements[3].Progress)
	}
}

func TestAchievementThresholds(t *testing.T) {
	tests := []struct {
		name      string
		user      User
		completed int
		index     int
		unlocked  bool
		progress  int
	}{
		{"first steps locked", User{}, 0, 0, false, 0},
		{"first steps unlocked", User{}, 1, 0, true, 1},
		{"first steps capped", User{}, 3, 0, true, 1},
		{"streak below", User{Streak: 6}, 0, 1, false, 6},
		{"streak reached", User{Streak: 7}, 0, 1, true, 7},
		{"streak capped", User{Streak: 30}, 0, 1, true, 7},
		{"xp below", User{XP: 499}, 0, 2, false, 499},
		{"xp reached", User{XP: 500}, 0, 2, true, 500},
		{"xp capped", User{XP: 1250}, 0, 2, true, 500},
		{"level below", User{Level: 4}, 0, 3, false, 4},
		{"level reached", User{Level: 5}, 0, 3, true, 5},
		{"level capped", User{Level: 9}, 0, 3, true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Achievements(&tt.user, tt.completed)[tt.index]
			if a.Unlocked != tt.unlocked {
				t.Errorf("Expected unlocked %v, got %v", tt.unlocked, a.Unlocked)
			}
			if a.Progress != tt.progress {
				t.Errorf("Expected progress %d, got %d", tt.progress, a.Progress)
			}
		})
	}
}
