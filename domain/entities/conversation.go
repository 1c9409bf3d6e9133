package entities

import "time"

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerTutor Speaker = "tutor"
)

// MaxScore is the upper bound of every analysis score.
const MaxScore = 10.0

// Scores are the tutor's ratings of one utterance, each in [0, MaxScore]
type Scores struct {
	Pronunciation float64 `json:"pronunciation"`
	Grammar       float64 `json:"grammar"`
	Fluency       float64 `json:"fluency"`
}

// Clamp forces every score into [0, MaxScore].
func (s Scores) Clamp() Scores {
	return Scores{
		Pronunciation: clampScore(s.Pronunciation),
		Grammar:       clampScore(s.Grammar),
		Fluency:       clampScore(s.Fluency),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Analysis is attached to tutor turns
type Analysis struct {
	Scores      Scores   `json:"scores"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

// TutorReply is what a tutor analysis provider returns for one user utterance
type TutorReply struct {
	Message     string   `json:"message"`
	Feedback    string   `json:"feedback"`
	Scores      Scores   `json:"scores"`
	Suggestions []string `json:"suggestions"`
}

// Analysis extracts the analysis part of the reply
func (r TutorReply) Analysis() *Analysis {
	return &Analysis{
		Scores:      r.Scores.Clamp(),
		Feedback:    r.Feedback,
		Suggestions: append([]string(nil), r.Suggestions...),
	}
}

// Turn is one utterance in a conversation session
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Analysis  *Analysis `json:"analysis,omitempty"`
}
