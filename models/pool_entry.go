package models

import "time"

// PoolCategory is the workout family a challenge competes in.
type PoolCategory string

const (
	PoolCategoryStrength PoolCategory = "strength"
	PoolCategoryCardio   PoolCategory = "cardio"
)

// PoolGoalType is the unit participants race on.
type PoolGoalType string

const (
	PoolGoalWorkouts   PoolGoalType = "workouts"
	PoolGoalSets       PoolGoalType = "sets"
	PoolGoalMinutes    PoolGoalType = "minutes"
	PoolGoalDistanceKM PoolGoalType = "distance_km"
)

// PreferredGender narrows who an entry may be paired with. nil = any.
type PreferredGender string

const (
	GenderAny    PreferredGender = "any"
	GenderMale   PreferredGender = "male"
	GenderFemale PreferredGender = "female"
)

// PoolEntryStatus — waiting is the only non-terminal state.
type PoolEntryStatus string

const (
	EntryStatusWaiting   PoolEntryStatus = "waiting"
	EntryStatusMatched   PoolEntryStatus = "matched"
	EntryStatusCancelled PoolEntryStatus = "cancelled"
	EntryStatusExpired   PoolEntryStatus = "expired"
)

// PoolEntry is a standing request to be matched into a pool challenge.
// Mutated only by the Matcher (→matched), the expiry sweep (→expired)
// or the owning user (→cancelled); never deleted.
type PoolEntry struct {
	ID             string       `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string       `gorm:"index;not null" json:"external_user_id"`
	Category       PoolCategory `gorm:"type:varchar(16);not null;check:category IN ('strength','cardio')" json:"category"`
	Type           PoolGoalType `gorm:"type:varchar(16);not null;check:type IN ('workouts','sets','minutes','distance_km')" json:"type"`

	// Competition terms — must match exactly between paired entries.
	TargetValue  float64 `gorm:"not null" json:"target_value"`
	DurationDays int     `gorm:"not null" json:"duration_days"`

	// Preferences
	PreferredGender *PreferredGender `gorm:"type:varchar(8)" json:"preferred_gender,omitempty"` // nil = any
	MinAge          *int             `json:"min_age,omitempty"`
	MaxAge          *int             `json:"max_age,omitempty"`
	AllowMultiple   bool             `gorm:"default:false" json:"allow_multiple"`
	MaxParticipants int              `gorm:"default:2" json:"max_participants"` // 2 unless AllowMultiple, then 2..10

	LatestStartDate time.Time       `gorm:"not null;index" json:"latest_start_date"`
	Status          PoolEntryStatus `gorm:"type:varchar(16);not null;default:'waiting';index" json:"status"`

	// Backfilled when the entry is claimed into a challenge.
	ChallengeID *string `gorm:"index" json:"challenge_id,omitempty"`

	Timestamps
}

// WantsGender reports whether the entry accepts a counterpart of the given
// profile gender. An unset or "any" preference accepts everyone.
func (e *PoolEntry) WantsGender(gender string) bool {
	if e.PreferredGender == nil || *e.PreferredGender == GenderAny {
		return true
	}
	return string(*e.PreferredGender) == gender
}

// WantsAge reports whether the counterpart's age falls inside the entry's
// optional age window.
func (e *PoolEntry) WantsAge(age int) bool {
	if e.MinAge != nil && age < *e.MinAge {
		return false
	}
	if e.MaxAge != nil && age > *e.MaxAge {
		return false
	}
	return true
}

// SameTerms reports whether two entries compete on identical terms.
// There is no tolerance or negotiation between mismatched terms.
func (e *PoolEntry) SameTerms(other *PoolEntry) bool {
	return e.Category == other.Category &&
		e.Type == other.Type &&
		e.TargetValue == other.TargetValue &&
		e.DurationDays == other.DurationDays
}
