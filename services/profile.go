package services

import (
	"errors"

	"pool-challenge-system/models"

	"gorm.io/gorm"
)

// ErrProfileUnavailable marks a user whose profile snapshot has not been
// synced yet. The Matcher treats such users as ineligible candidates rather
// than failing the whole invocation.
var ErrProfileUnavailable = errors.New("profile snapshot unavailable")

type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// GetProfile returns the local snapshot for a user. A missing or unusable
// snapshot (no gender or birth year synced yet) yields ErrProfileUnavailable.
func (s *ProfileService) GetProfile(externalUserID string) (*models.PoolUser, error) {
	var user models.PoolUser
	err := s.DB.Where("external_user_id = ?", externalUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileUnavailable
	}
	if err != nil {
		return nil, err
	}
	if user.Gender == "" || user.BirthYear == 0 {
		return nil, ErrProfileUnavailable
	}
	return &user, nil
}
