package entities

import (
	"fmt"
	"strconv"
	"time"
)

// ExerciseProgress marks an exercise as answered
type ExerciseProgress struct {
	Completed bool      `json:"completed" bson:"completed"`
	Correct   bool      `json:"correct" bson:"correct"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// LessonCompletion marks a whole lesson as finished
type LessonCompletion struct {
	Completed   bool      `json:"completed" bson:"completed"`
	CompletedAt time.Time `json:"completed_at" bson:"completed_at"`
}

// Progress holds every completion event of one learner. Entries are only
// ever added or overwritten, never removed.
type Progress struct {
	Exercises map[string]ExerciseProgress `json:"exercises" bson:"exercises"`
	Lessons   map[string]LessonCompletion `json:"lessons" bson:"lessons"`
}

// NewProgress returns an empty progress record
func NewProgress() *Progress {
	return &Progress{
		Exercises: make(map[string]ExerciseProgress),
		Lessons:   make(map[string]LessonCompletion),
	}
}

// ExerciseKey is the composite (lessonID, exerciseID) key.
func ExerciseKey(lessonID, exerciseID int) string {
	return fmt.Sprintf("%d-%d", lessonID, exerciseID)
}

// LessonKey is the key of a lesson-level entry.
func LessonKey(lessonID int) string {
	return strconv.Itoa(lessonID)
}

func (p *Progress) ensure() {
	if p.Exercises == nil {
		p.Exercises = make(map[string]ExerciseProgress)
	}
	if p.Lessons == nil {
		p.Lessons = make(map[string]LessonCompletion)
	}
}

// RecordExercise stores the outcome of an answered exercise
func (p *Progress) RecordExercise(lessonID, exerciseID int, correct bool, at time.Time) {
	p.ensure()
	p.Exercises[ExerciseKey(lessonID, exerciseID)] = ExerciseProgress{
		Completed: true,
		Correct:   correct,
		Timestamp: at,
	}
}

// RecordLesson marks a lesson as completed
func (p *Progress) RecordLesson(lessonID int, at time.Time) {
	p.ensure()
	p.Lessons[LessonKey(lessonID)] = LessonCompletion{
		Completed:   true,
		CompletedAt: at,
	}
}

// Exercise returns the entry for an exercise, if any
func (p *Progress) Exercise(lessonID, exerciseID int) (ExerciseProgress, bool) {
	e, ok := p.Exercises[ExerciseKey(lessonID, exerciseID)]
	return e, ok
}

// LessonCompleted reports whether a lesson-level entry marks the lesson done
func (p *Progress) LessonCompleted(lessonID int) bool {
	return p.Lessons[LessonKey(lessonID)].Completed
}

// Empty reports whether no completion has been recorded
func (p *Progress) Empty() bool {
	return len(p.Exercises) == 0 && len(p.Lessons) == 0
}

// Merge copies every entry of other into p. Entries of other win.
func (p *Progress) Merge(other *Progress) {
	p.ensure()
	for k, v := range other.Exercises {
		p.Exercises[k] = v
	}
	for k, v := range other.Lessons {
		p.Lessons[k] = v
	}
}

// Clone returns a deep copy
func (p *Progress) Clone() *Progress {
	c := NewProgress()
	for k, v := range p.Exercises {
		c.Exercises[k] = v
	}
	for k, v := range p.Lessons {
		c.Lessons[k] = v
	}
	return c
}
