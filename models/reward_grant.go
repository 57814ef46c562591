package models

import "time"

// RewardGrantStatus — pending until the XP credit has been applied.
type RewardGrantStatus string

const (
	GrantStatusPending RewardGrantStatus = "pending"
	GrantStatusSettled RewardGrantStatus = "settled"
)

// RewardGrant is the exactly-once payout ledger for judged challenges.
// It is created in the same transaction that flips a challenge to
// completed, uniquely keyed by (challenge_id, winner_id) so a retried
// judge pass or reconciler run can never double-credit the winner.
type RewardGrant struct {
	ID          string            `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID string            `gorm:"not null;uniqueIndex:idx_reward_grant_challenge_winner" json:"challenge_id"`
	WinnerID    string            `gorm:"not null;uniqueIndex:idx_reward_grant_challenge_winner" json:"winner_id"`
	Amount      int64             `gorm:"not null" json:"amount"`
	Status      RewardGrantStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	SettledAt   *time.Time        `json:"settled_at,omitempty"`

	Timestamps
}
