package entities

import (
	"fmt"
	"strings"
)

// ExerciseType discriminates the exercise variants
type ExerciseType string

const (
	ExerciseTranslation ExerciseType = "translation"
	ExerciseAudio       ExerciseType = "audio"
	ExerciseSpeaking    ExerciseType = "speaking"
	ExerciseMatching    ExerciseType = "matching"
)

// MatchingPair is one source/target term pair of a matching exercise
type MatchingPair struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Exercise is a tagged union over the four exercise variants. Only the fields
// of the variant named by Type are meaningful.
type Exercise struct {
	ID       int          `json:"id" yaml:"id"`
	Type     ExerciseType `json:"type" yaml:"type"`
	Question string       `json:"question" yaml:"question"`

	// translation / audio
	Audio       string   `json:"audio,omitempty" yaml:"audio,omitempty"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	Correct     int      `json:"correct,omitempty" yaml:"correct,omitempty"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`

	// speaking
	ExpectedAnswer string   `json:"expected_answer,omitempty" yaml:"expected_answer,omitempty"`
	Hints          []string `json:"hints,omitempty" yaml:"hints,omitempty"`

	// matching
	Pairs []MatchingPair `json:"pairs,omitempty" yaml:"pairs,omitempty"`
}

// Answer is the learner's selection for one exercise. Which field is read
// depends on the exercise variant.
type Answer struct {
	Option   *int     `json:"option,omitempty"`
	Attested bool     `json:"attested,omitempty"`
	Matches  []string `json:"matches,omitempty"`
}

// OptionAnswer is a convenience constructor for multiple-choice selections.
func OptionAnswer(i int) Answer {
	return Answer{Option: &i}
}

// IsMultipleChoice reports whether the exercise is answered by picking an option
func (e *Exercise) IsMultipleChoice() bool {
	return e.Type == ExerciseTranslation || e.Type == ExerciseAudio
}

// Validate enforces the per-variant invariants
func (e *Exercise) Validate() error {
	if e.Question == "" {
		return Validation("exercise %d: question is required", e.ID)
	}
	switch e.Type {
	case ExerciseTranslation, ExerciseAudio:
		if len(e.Options) == 0 {
			return Validation("exercise %d: options are required", e.ID)
		}
		if e.Correct < 0 || e.Correct >= len(e.Options) {
			return Validation("exercise %d: correct index %d outside %d options", e.ID, e.Correct, len(e.Options))
		}
		if e.Type == ExerciseAudio && e.Audio == "" {
			return Validation("exercise %d: audio prompt is required", e.ID)
		}
	case ExerciseSpeaking:
		if e.ExpectedAnswer == "" {
			return Validation("exercise %d: expected answer is required", e.ID)
		}
	case ExerciseMatching:
		if len(e.Pairs) == 0 {
			return Validation("exercise %d: pairs are required", e.ID)
		}
	default:
		return Validation("exercise %d: unknown type %q", e.ID, e.Type)
	}
	return nil
}

// Check grades an answer. It returns ErrValidation when the selection does not
// fit the exercise (for instance an option index out of range).
func (e *Exercise) Check(a Answer) (bool, error) {
	switch e.Type {
	case ExerciseTranslation, ExerciseAudio:
		if a.Option == nil {
			return false, Validation("exercise %d: option is required", e.ID)
		}
		if *a.Option < 0 || *a.Option >= len(e.Options) {
			return false, Validation("exercise %d: option %d outside %d options", e.ID, *a.Option, len(e.Options))
		}
		return *a.Option == e.Correct, nil
	case ExerciseSpeaking:
		// No pronunciation check happens here; the learner attests to it.
		return a.Attested, nil
	case ExerciseMatching:
		if len(a.Matches) != len(e.Pairs) {
			return false, Validation("exercise %d: expected %d matches, got %d", e.ID, len(e.Pairs), len(a.Matches))
		}
		for i, p := range e.Pairs {
			if !strings.EqualFold(strings.TrimSpace(a.Matches[i]), p.Target) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, Validation("exercise %d: unknown type %q", e.ID, e.Type)
}

// Feedback is the explanation shown after an answer is graded.
func (e *Exercise) Feedback() string {
	switch e.Type {
	case ExerciseSpeaking:
		return fmt.Sprintf("The expected answer is %q.", e.ExpectedAnswer)
	case ExerciseMatching:
		parts := make([]string, 0, len(e.Pairs))
		for _, p := range e.Pairs {
			parts = append(parts, p.Source+" = "+p.Target)
		}
		return strings.Join(parts, ", ")
	}
	return e.Explanation
}

// Lesson is a static, ordered unit of exercises
type Lesson struct {
	ID         int        `json:"id" yaml:"id"`
	Title      string     `json:"title" yaml:"title"`
	Language   string     `json:"language" yaml:"language"`
	Difficulty string     `json:"difficulty" yaml:"difficulty"`
	XP         int        `json:"xp" yaml:"xp"`
	Exercises  []Exercise `json:"exercises" yaml:"exercises"`
}

// Exercise resolves an exercise by id
func (l *Lesson) Exercise(id int) (*Exercise, error) {
	for i := range l.Exercises {
		if l.Exercises[i].ID == id {
			return &l.Exercises[i], nil
		}
	}
	return nil, NotFound("exercise", fmt.Sprintf("%d/%d", l.ID, id))
}

// Validate checks the lesson and all of its exercises
func (l *Lesson) Validate() error {
	if l.Title == "" {
		return Validation("lesson %d: title is required", l.ID)
	}
	if l.XP <= 0 {
		return Validation("lesson %d: xp reward must be positive", l.ID)
	}
	if len(l.Exercises) == 0 {
		return Validation("lesson %d: at least one exercise is required", l.ID)
	}
	seen := make(map[int]bool, len(l.Exercises))
	for i := range l.Exercises {
		ex := &l.Exercises[i]
		if seen[ex.ID] {
			return Validation("lesson %d: duplicate exercise id %d", l.ID, ex.ID)
		}
		seen[ex.ID] = true
		if err := ex.Validate(); err != nil {
			return fmt.Errorf("lesson %d: %w", l.ID, err)
		}
	}
	return nil
}
