package models

import "time"

// PoolChallengeStatus — once completed the row is write-once frozen.
type PoolChallengeStatus string

const (
	ChallengeStatusActive    PoolChallengeStatus = "active"
	ChallengeStatusCompleted PoolChallengeStatus = "completed"
)

// PoolChallenge is a formed, time-boxed competition between 2+ participants.
// Created atomically by the Matcher together with its participants; mutated
// only by the Judge (status/winner); never deleted.
type PoolChallenge struct {
	ID           string              `gorm:"primaryKey;type:uuid" json:"id"`
	Category     PoolCategory        `gorm:"type:varchar(16);not null" json:"category"`
	Type         PoolGoalType        `gorm:"type:varchar(16);not null" json:"type"`
	TargetValue  float64             `gorm:"not null" json:"target_value"`
	StartDate    time.Time           `gorm:"not null" json:"start_date"`
	EndDate      time.Time           `gorm:"not null;index" json:"end_date"` // start_date + duration_days
	Status       PoolChallengeStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	WinnerID     *string             `json:"winner_id,omitempty"` // external user id; NULL on tie or zero activity
	XPReward     int64               `gorm:"not null" json:"xp_reward"`

	Participants []PoolParticipant `gorm:"foreignKey:ChallengeID" json:"participants,omitempty"`

	Timestamps
}

// PoolParticipant is one user's membership and progress in one challenge.
// CurrentValue is owned exclusively by the external Progress Feed; this
// engine only initializes it to zero and reads it back at judgement.
type PoolParticipant struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID    string    `gorm:"not null;uniqueIndex:idx_pool_participant_challenge_user" json:"challenge_id"`
	ExternalUserID string    `gorm:"not null;uniqueIndex:idx_pool_participant_challenge_user;index" json:"external_user_id"`
	CurrentValue   float64   `gorm:"not null;default:0" json:"current_value"`
	JoinedAt       time.Time `gorm:"not null" json:"joined_at"`

	Timestamps
}
