package models

import (
	"time"

	"gorm.io/gorm"
)

// PoolUser is a local snapshot of the profile data the Matcher needs
// (gender and birth year for the compatibility predicate, display name for
// post-match views). Owned solely by this service, populated by the profile
// sync worker from the Profile Service. A user without a snapshot row is
// simply ineligible for matching.
type PoolUser struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string  `gorm:"index;not null" json:"username"`
	Gender         string  `gorm:"type:varchar(8)" json:"gender"` // male|female
	BirthYear      int     `json:"birth_year"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Age derives the profile age the way the matching predicate defines it:
// current year minus birth year.
func (u *PoolUser) Age(now time.Time) int {
	return now.Year() - u.BirthYear
}

// RemoteProfile mirrors the JSON payload of the Profile Service's public
// sync feed (read-only, consumed by the profile sync worker).
type RemoteProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Gender     string    `json:"gender"`
	BirthYear  int       `json:"birth_year"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
