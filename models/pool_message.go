package models

import "time"

// PoolMessage is the chat row attached to a challenge. The rows are owned
// and written by the chat service; this engine only reads them back for the
// challenge detail view, keyed by challenge_id.
type PoolMessage struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID    string    `gorm:"index;not null" json:"challenge_id"`
	ExternalUserID string    `gorm:"not null" json:"external_user_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	SentAt         time.Time `gorm:"not null;index" json:"sent_at"`
}
