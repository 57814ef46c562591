package services

import (
	"context"
	"errors"
	"log"
	"time"

	"pool-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrChallengeAlreadyJudged signals that a conditional active→completed
// update found the challenge already completed by an overlapping sweep.
var ErrChallengeAlreadyJudged = errors.New("challenge already judged")

// JudgeService closes out challenges whose window has elapsed and settles
// the reward exactly once.
type JudgeService struct {
	DB          *gorm.DB
	Progression *ProgressionService
	Events      *EventPublisher
}

func NewJudgeService(db *gorm.DB, progression *ProgressionService, events *EventPublisher) *JudgeService {
	return &JudgeService{DB: db, Progression: progression, Events: events}
}

// SweepDue judges every active challenge whose end_date has passed.
func (s *JudgeService) SweepDue(ctx context.Context) {
	var due []models.PoolChallenge
	if err := s.DB.Where("status = ? AND end_date <= ?", models.ChallengeStatusActive, time.Now()).
		Find(&due).Error; err != nil {
		log.Printf("[JUDGE] ❌ Sweep query failed: %v", err)
		return
	}

	for _, challenge := range due {
		if err := s.JudgeChallenge(ctx, challenge.ID); err != nil && !errors.Is(err, ErrChallengeAlreadyJudged) {
			log.Printf("[JUDGE] ⚠️ Failed to judge challenge %s: %v", challenge.ID, err)
		}
	}
	if len(due) > 0 {
		log.Printf("[JUDGE] Sweep processed %d due challenge(s)", len(due))
	}
}

// JudgeChallenge determines the winner and flips the challenge to completed.
// The flip is a conditional update guarded on status='active', and the
// reward grant is written in the same transaction, so two overlapping sweeps
// can never produce a second judgement or a second reward. A completed
// challenge is never reopened.
func (s *JudgeService) JudgeChallenge(ctx context.Context, challengeID string) error {
	var challenge models.PoolChallenge
	if err := s.DB.First(&challenge, "id = ?", challengeID).Error; err != nil {
		return err
	}
	if challenge.Status != models.ChallengeStatusActive {
		return ErrChallengeAlreadyJudged
	}
	if time.Now().Before(challenge.EndDate) {
		return errors.New("challenge has not reached its end date")
	}

	var participants []models.PoolParticipant
	if err := s.DB.Where("challenge_id = ?", challengeID).Find(&participants).Error; err != nil {
		return err
	}

	winnerID := determineWinner(participants)

	var grant *models.RewardGrant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PoolChallenge{}).
			Where("id = ? AND status = ?", challengeID, models.ChallengeStatusActive).
			Updates(map[string]interface{}{
				"status":    models.ChallengeStatusCompleted,
				"winner_id": winnerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrChallengeAlreadyJudged
		}
		if winnerID != nil {
			grant = &models.RewardGrant{
				ID:          uuid.NewString(),
				ChallengeID: challengeID,
				WinnerID:    *winnerID,
				Amount:      challenge.XPReward,
				Status:      models.GrantStatusPending,
			}
			if err := tx.Create(grant).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if winnerID != nil {
		log.Printf("[JUDGE] 🏆 Challenge %s completed, winner=%s, reward=%d XP", challengeID, *winnerID, challenge.XPReward)
	} else {
		log.Printf("[JUDGE] Challenge %s completed with no winner (tie or zero activity)", challengeID)
	}

	event := PoolEvent{Type: EventChallengeCompleted, ChallengeID: challengeID}
	if winnerID != nil {
		event.WinnerID = *winnerID
	}
	s.Events.Publish(ctx, event)

	// Settlement happens after the judgement commit. A failure here leaves
	// the grant pending for the reconciler; the judgement itself stands.
	if grant != nil {
		if err := s.SettleGrant(grant); err != nil {
			log.Printf("[JUDGE] ⚠️ Reward settlement for challenge %s deferred to reconciler: %v", challengeID, err)
		}
	}
	return nil
}

// SettlePendingGrants re-drives every grant whose XP credit has not landed
// yet (e.g. the process died between judgement and settlement). Called by
// the reward reconciler worker; idempotent via SettleGrant's claim.
func (s *JudgeService) SettlePendingGrants() (int, error) {
	var pending []models.RewardGrant
	if err := s.DB.Where("status = ?", models.GrantStatusPending).Find(&pending).Error; err != nil {
		return 0, err
	}
	settled := 0
	for i := range pending {
		if err := s.SettleGrant(&pending[i]); err != nil {
			log.Printf("[JUDGE] ⚠️ Reconciling grant %s failed: %v", pending[i].ID, err)
			continue
		}
		settled++
	}
	return settled, nil
}

// determineWinner applies the winner rules: strict maximum of current_value
// wins; a shared positive maximum or an all-zero board yields no winner.
func determineWinner(participants []models.PoolParticipant) *string {
	var best float64
	var winner *string
	tied := false
	for i := range participants {
		p := participants[i]
		switch {
		case p.CurrentValue > best:
			best = p.CurrentValue
			winner = &participants[i].ExternalUserID
			tied = false
		case p.CurrentValue == best && p.CurrentValue > 0:
			tied = true
		}
	}
	if best == 0 || tied {
		return nil
	}
	return winner
}

// SettleGrant credits a pending grant's XP and marks it settled, in one
// transaction. The conditional update on status='pending' claims the grant,
// so concurrent reconciler runs or a re-driven judge pass cannot credit the
// winner twice; an already-settled grant is a no-op.
func (s *JudgeService) SettleGrant(grant *models.RewardGrant) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.RewardGrant{}).
			Where("id = ? AND status = ?", grant.ID, models.GrantStatusPending).
			Updates(map[string]interface{}{
				"status":     models.GrantStatusSettled,
				"settled_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			log.Printf("[JUDGE] Grant %s was settled concurrently, skipping", grant.ID)
			return nil
		}
		if _, err := s.Progression.ensureProgressRecordTx(tx, grant.WinnerID); err != nil {
			return err
		}
		if _, err := s.Progression.awardXPTx(tx, grant.WinnerID, grant.Amount, "pool_challenge_"+grant.ChallengeID); err != nil {
			return err
		}
		return s.Progression.recordChallengeWonTx(tx, grant.WinnerID)
	})
}
