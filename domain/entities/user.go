package entities

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier is the plan a user is subscribed to
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPro     SubscriptionTier = "pro"
	TierPremium SubscriptionTier = "premium"
)

// Valid reports whether t is one of the known tiers
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierPremium:
		return true
	}
	return false
}

// XPPerLevel is the amount of experience needed to gain one level.
const XPPerLevel = 100

const avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="

// User is the learner's identity and progression snapshot
type User struct {
	ID                string           `json:"id" bson:"id"`
	Name              string           `json:"name" bson:"name"`
	Email             string           `json:"email" bson:"email"`
	Avatar            string           `json:"avatar" bson:"avatar"`
	Streak            int              `json:"streak" bson:"streak"`
	XP                int              `json:"xp" bson:"xp"`
	Level             int              `json:"level" bson:"level"`
	Languages         []string         `json:"languages" bson:"languages"`
	Subscription      SubscriptionTier `json:"subscription" bson:"subscription"`
	SubscriptionID    string           `json:"subscription_id,omitempty" bson:"subscription_id,omitempty"`
	SubscriptionStart *time.Time       `json:"subscription_start,omitempty" bson:"subscription_start,omitempty"`
	LastActive        *time.Time       `json:"last_active,omitempty" bson:"last_active,omitempty"`
	JoinedAt          time.Time        `json:"joined_at" bson:"joined_at"`
}

// NewUser creates a fresh learner on first login
func NewUser(name, email string, now time.Time) (*User, error) {
	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Avatar:       avatarBaseURL + url.QueryEscape(name),
		Level:        1,
		Languages:    make([]string, 0),
		Subscription: TierFree,
		JoinedAt:     now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// LevelForXP derives the level from accumulated experience.
func LevelForXP(xp int) int {
	return xp/XPPerLevel + 1
}

// Clone returns a deep copy so callers cannot mutate ledger state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Languages = append([]string(nil), u.Languages...)
	if u.LastActive != nil {
		t := *u.LastActive
		c.LastActive = &t
	}
	if u.SubscriptionStart != nil {
		t := *u.SubscriptionStart
		c.SubscriptionStart = &t
	}
	return &c
}

// Validate checks the record invariants
func (u *User) Validate() error {
	if u.Name == "" {
		return Validation("name is required")
	}
	if u.Email == "" {
		return Validation("email is required")
	}
	if u.XP < 0 {
		return Validation("xp must be non-negative")
	}
	if u.Streak < 0 {
		return Validation("streak must be non-negative")
	}
	if !u.Subscription.Valid() {
		return Validation("unknown subscription tier %q", u.Subscription)
	}
	return nil
}
