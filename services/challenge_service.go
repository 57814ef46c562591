package services

import (
	"errors"
	"log"
	"time"

	"pool-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChallengeService exposes the challenge read side plus the two narrow
// write contracts around it: the Progress Feed increment and the
// participant-triggered judge nudge.
type ChallengeService struct {
	DB    *gorm.DB
	Judge *JudgeService
}

func NewChallengeService(db *gorm.DB, judge *JudgeService) *ChallengeService {
	return &ChallengeService{DB: db, Judge: judge}
}

// GetMyChallenges lists challenges the authenticated user participates in,
// optionally filtered by status, newest first.
func (s *ChallengeService) GetMyChallenges(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	query := s.DB.Model(&models.PoolChallenge{}).
		Joins("JOIN pool_participants ON pool_participants.challenge_id = pool_challenges.id").
		Where("pool_participants.external_user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("pool_challenges.status = ?", status)
	}

	var challenges []models.PoolChallenge
	if err := query.Order("pool_challenges.created_at DESC").Find(&challenges).Error; err != nil {
		log.Printf("[POOL] DB error fetching challenges for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch challenges"})
	}
	return c.JSON(challenges)
}

// GetChallenge returns one challenge with its participants. Members only —
// pool challenges are anonymous to everyone outside them.
func (s *ChallengeService) GetChallenge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	challengeID := c.Params("id")
	if _, err := uuid.Parse(challengeID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid challenge ID"})
	}

	challenge, status := s.loadForParticipant(challengeID, userID)
	if challenge == nil {
		return c.Status(status).JSON(fiber.Map{"error": statusMessage(status)})
	}
	return c.JSON(challenge)
}

// GetChallengeMessages reads the chat rows attached to a challenge. The
// rows are written by the chat service; this is a read-through for members.
func (s *ChallengeService) GetChallengeMessages(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	challengeID := c.Params("id")
	if _, err := uuid.Parse(challengeID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid challenge ID"})
	}

	if challenge, status := s.loadForParticipant(challengeID, userID); challenge == nil {
		return c.Status(status).JSON(fiber.Map{"error": statusMessage(status)})
	}

	var messages []models.PoolMessage
	if err := s.DB.Where("challenge_id = ?", challengeID).
		Order("sent_at ASC").
		Find(&messages).Error; err != nil {
		log.Printf("[POOL] DB error fetching messages for challenge %s: %v", challengeID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch messages"})
	}
	return c.JSON(messages)
}

// NudgeJudge lets a participant who observes their challenge has expired
// trigger judgement on demand. Best-effort: correctness still rests on the
// conditional write, and the periodic sweep remains the safety net.
func (s *ChallengeService) NudgeJudge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	challengeID := c.Params("id")
	if _, err := uuid.Parse(challengeID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid challenge ID"})
	}

	if challenge, status := s.loadForParticipant(challengeID, userID); challenge == nil {
		return c.Status(status).JSON(fiber.Map{"error": statusMessage(status)})
	}

	err := s.Judge.JudgeChallenge(c.Context(), challengeID)
	if errors.Is(err, ErrChallengeAlreadyJudged) {
		return c.JSON(fiber.Map{"message": "Challenge already judged", "challenge_id": challengeID})
	}
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Challenge judged", "challenge_id": challengeID})
}

// RecordProgress is the Progress Feed's write contract: increment a
// participant's current_value as real-world activity is logged. It only
// accepts credit while the challenge is active and inside its window, which
// is what guarantees the Judge's read can never be outrun after completion.
func (s *ChallengeService) RecordProgress(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	challengeID := c.Params("id")
	if _, err := uuid.Parse(challengeID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid challenge ID"})
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
	}

	var challenge models.PoolChallenge
	if err := s.DB.First(&challenge, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Challenge not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if challenge.Status != models.ChallengeStatusActive || time.Now().After(challenge.EndDate) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Challenge is no longer accepting progress"})
	}

	res := s.DB.Model(&models.PoolParticipant{}).
		Where("challenge_id = ? AND external_user_id = ?", challengeID, userID).
		Update("current_value", gorm.Expr("current_value + ?", req.Amount))
	if res.Error != nil {
		log.Printf("[POOL] DB error recording progress for %s in %s: %v", userID, challengeID, res.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record progress"})
	}
	if res.RowsAffected != 1 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not a participant of this challenge"})
	}

	return c.JSON(fiber.Map{"message": "Progress recorded", "challenge_id": challengeID})
}

// GetMyProgress returns the authenticated user's XP aggregate, creating the
// row lazily for brand-new users.
func (s *ChallengeService) GetMyProgress(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	prog, err := s.Judge.Progression.EnsureProgressRecord(userID)
	if err != nil {
		log.Printf("[POOL] DB error fetching progress for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch progress"})
	}
	return c.JSON(prog)
}

// loadForParticipant fetches a challenge with participants and verifies the
// caller is one of them. Returns nil plus the HTTP status to answer with
// when the challenge is missing or the caller is an outsider.
func (s *ChallengeService) loadForParticipant(challengeID, userID string) (*models.PoolChallenge, int) {
	var challenge models.PoolChallenge
	err := s.DB.Preload("Participants").First(&challenge, "id = ?", challengeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.StatusNotFound
	}
	if err != nil {
		log.Printf("[POOL] DB error fetching challenge %s: %v", challengeID, err)
		return nil, fiber.StatusInternalServerError
	}
	for _, p := range challenge.Participants {
		if p.ExternalUserID == userID {
			return &challenge, fiber.StatusOK
		}
	}
	return nil, fiber.StatusForbidden
}

func statusMessage(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "Challenge not found"
	case fiber.StatusForbidden:
		return "Not a participant of this challenge"
	default:
		return "DB error"
	}
}
