package services

import (
	"fmt"
	"math"
	"time"

	"pool-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// XPWeights define relative values (tunable via config/env later)
type XPWeights struct {
	BasePoolXP      int64 // flat stake per entrant
	XPPerDay        int64 // scales with competition length
	XPPerTargetUnit int64 // scales with ambition of the target
}

var DefaultXPWeights = XPWeights{
	BasePoolXP:      25,
	XPPerDay:        10,
	XPPerTargetUnit: 2,
}

// XPForPoolChallenge computes the reward pot at challenge creation.
// Every entrant stakes the same amount in spirit; the whole pot goes to
// the eventual winner.
func XPForPoolChallenge(targetValue float64, durationDays, participants int) int64 {
	w := DefaultXPWeights
	stake := w.BasePoolXP + w.XPPerDay*int64(durationDays) + w.XPPerTargetUnit*int64(math.Round(targetValue))
	return stake * int64(participants)
}

// LevelConfig: XP needed for *next* level (e.g., level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const BaseXPPerLevel = 100

// xpForNextLevel returns XP required to reach level+1 from current level
func xpForNextLevel(currentLevel int) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	// L_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

// RankThresholds: levels required before rank-up
var RankThresholds = map[int]int{ // rank → min level
	1: 1,   // Bronze (start)
	2: 10,  // Silver
	3: 25,  // Gold
	4: 50,  // Platinum
	5: 100, // Diamond
}

func determineRank(level int) int {
	for rank := 5; rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

type ProgressionService struct {
	DB *gorm.DB
}

func NewProgressionService(db *gorm.DB) *ProgressionService {
	return &ProgressionService{DB: db}
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent)
func (s *ProgressionService) EnsureProgressRecord(externalUserID string) (*models.UserProgress, error) {
	return s.ensureProgressRecordTx(s.DB, externalUserID)
}

func (s *ProgressionService) ensureProgressRecordTx(tx *gorm.DB, externalUserID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error
	if err == gorm.ErrRecordNotFound {
		prog = models.UserProgress{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			TotalXP:        0,
			Level:          1,
			Rank:           1,
		}
		if err := tx.Create(&prog).Error; err != nil {
			return nil, err
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// RecordChallengeJoined bumps the challenge counter once a user is claimed
// into a pool challenge, bootstrapping the progress row if needed.
func (s *ProgressionService) RecordChallengeJoined(externalUserID string) error {
	if _, err := s.EnsureProgressRecord(externalUserID); err != nil {
		return err
	}
	return s.DB.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Update("total_challenges", gorm.Expr("total_challenges + 1")).Error
}

// AwardXP atomically updates XP, level, rank — returns updated progress
func (s *ProgressionService) AwardXP(externalUserID string, xp int64, reason string) (*models.UserProgress, error) {
	var updatedProg *models.UserProgress
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		updatedProg, err = s.awardXPTx(tx, externalUserID, xp, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updatedProg, nil
}

// awardXPTx is the transactional body of AwardXP, reusable inside a caller's
// own transaction (e.g. reward grant settlement).
func (s *ProgressionService) awardXPTx(tx *gorm.DB, externalUserID string, xp int64, reason string) (*models.UserProgress, error) {
	var prog models.UserProgress
	if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return nil, fmt.Errorf("progress record not found for %s", externalUserID)
	}

	oldRank := prog.Rank

	prog.TotalXP += xp

	// Level-up logic: accumulate until enough for next level
	for prog.TotalXP >= int64(BaseXPPerLevel)*int64(prog.Level)+xpForNextLevel(prog.Level) {
		prog.Level++
		now := time.Now()
		prog.LastLevelUpAt = &now
	}

	// Rank-up logic
	newRank := determineRank(prog.Level)
	if newRank > oldRank {
		now := time.Now()
		prog.Rank = newRank
		prog.LastRankUpAt = &now
	}

	if err := tx.Save(&prog).Error; err != nil {
		return nil, err
	}

	fmt.Printf("🎮 XP Awarded: %s → XP=%d, Lvl=%d, Rank=%d (reason: %s)\n",
		externalUserID, prog.TotalXP, prog.Level, prog.Rank, reason)

	// Copy for return (avoid pointer to stack var)
	updated := prog
	return &updated, nil
}

// recordChallengeWonTx bumps the win counter alongside the XP credit.
func (s *ProgressionService) recordChallengeWonTx(tx *gorm.DB, externalUserID string) error {
	return tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Update("challenges_won", gorm.Expr("challenges_won + 1")).Error
}
