package entities

// Achievement is a milestone derived from the learner's record. Progress is
// capped at Target.
type Achievement struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Unlocked    bool   `json:"unlocked"`
	Progress    int    `json:"progress"`
	Target      int    `json:"target"`
}

type milestone struct {
	id          int
	title       string
	description string
	icon        string
	target      int
	measure     func(u *User, completedLessons int) int
}

var milestones = []milestone{
	{
		id: 1, title: "First Steps", description: "Complete your first lesson", icon: "🎯", target: 1,
		measure: func(_ *User, completed int) int { return completed },
	},
	{
		id: 2, title: "Streak Master", description: "Maintain a 7-day streak", icon: "🔥", target: 7,
		measure: func(u *User, _ int) int { return u.Streak },
	},
	{
		id: 3, title: "XP Collector", description: "Earn 500 XP", icon: "⚡", target: 500,
		measure: func(u *User, _ int) int { return u.XP },
	},
	{
		id: 4, title: "Level Up", description: "Reach level 5", icon: "🏆", target: 5,
		measure: func(u *User, _ int) int { return u.Level },
	},
}

// Achievements evaluates every milestone for user, who has finished
// completedLessons lessons.
func Achievements(user *User, completedLessons int) []Achievement {
	out := make([]Achievement, 0, len(milestones))
	for _, m := range milestones {
		value := m.measure(user, completedLessons)
		out = append(out, Achievement{
			ID:          m.id,
			Title:       m.title,
			Description: m.description,
			Icon:        m.icon,
			Unlocked:    value >= m.target,
			Progress:    min(value, m.target),
			Target:      m.target,
		})
	}
	return out
}
