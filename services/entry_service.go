package services

import (
	"context"
	"errors"
	"log"
	"time"

	"pool-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxPoolDurationDays = 365

// EntryService owns the PoolEntry lifecycle: submission (which triggers a
// synchronous match attempt), cancellation and the expiry sweep.
type EntryService struct {
	DB      *gorm.DB
	Matcher *MatcherService
	Events  *EventPublisher
}

func NewEntryService(db *gorm.DB, matcher *MatcherService, events *EventPublisher) *EntryService {
	return &EntryService{DB: db, Matcher: matcher, Events: events}
}

// SubmitEntry persists a new waiting entry and immediately runs the Matcher
// against the pool. The caller learns right away whether they are waiting
// or already in a challenge.
func (s *EntryService) SubmitEntry(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Category        models.PoolCategory     `json:"category"`
		Type            models.PoolGoalType     `json:"type"`
		TargetValue     float64                 `json:"target_value"`
		DurationDays    int                     `json:"duration_days"`
		PreferredGender *models.PreferredGender `json:"preferred_gender"`
		MinAge          *int                    `json:"min_age"`
		MaxAge          *int                    `json:"max_age"`
		AllowMultiple   bool                    `json:"allow_multiple"`
		MaxParticipants int                     `json:"max_participants"`
		LatestStartDate time.Time               `json:"latest_start_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Category != models.PoolCategoryStrength && req.Category != models.PoolCategoryCardio {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "category must be strength or cardio"})
	}
	switch req.Type {
	case models.PoolGoalWorkouts, models.PoolGoalSets, models.PoolGoalMinutes, models.PoolGoalDistanceKM:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type must be workouts, sets, minutes or distance_km"})
	}
	if req.TargetValue <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_value must be positive"})
	}
	if req.DurationDays < 1 || req.DurationDays > maxPoolDurationDays {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_days must be between 1 and 365"})
	}
	if req.PreferredGender != nil {
		switch *req.PreferredGender {
		case models.GenderAny, models.GenderMale, models.GenderFemale:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "preferred_gender must be any, male or female"})
		}
	}
	if req.MinAge != nil && req.MaxAge != nil && *req.MinAge > *req.MaxAge {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "min_age cannot exceed max_age"})
	}

	maxParticipants := 2
	if req.AllowMultiple {
		maxParticipants = req.MaxParticipants
		if maxParticipants < 2 || maxParticipants > 10 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "max_participants must be between 2 and 10 when allow_multiple is set"})
		}
	} else if req.MaxParticipants != 0 && req.MaxParticipants != 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "max_participants must be 2 unless allow_multiple is set"})
	}

	if !req.LatestStartDate.After(time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "latest_start_date must be in the future"})
	}

	// One live request per user and discipline keeps the pool unambiguous.
	var existing int64
	if err := s.DB.Model(&models.PoolEntry{}).
		Where("external_user_id = ? AND category = ? AND type = ? AND status = ?",
			userID, req.Category, req.Type, models.EntryStatusWaiting).
		Count(&existing).Error; err != nil {
		log.Printf("[POOL] DB error checking existing entries for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You already have a waiting entry for this category and type"})
	}

	entry := &models.PoolEntry{
		ID:              uuid.NewString(),
		ExternalUserID:  userID,
		Category:        req.Category,
		Type:            req.Type,
		TargetValue:     req.TargetValue,
		DurationDays:    req.DurationDays,
		PreferredGender: req.PreferredGender,
		MinAge:          req.MinAge,
		MaxAge:          req.MaxAge,
		AllowMultiple:   req.AllowMultiple,
		MaxParticipants: maxParticipants,
		LatestStartDate: req.LatestStartDate,
		Status:          models.EntryStatusWaiting,
	}
	if err := s.DB.Create(entry).Error; err != nil {
		log.Printf("[POOL] DB error creating entry for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create entry"})
	}

	challenge, err := s.Matcher.MatchEntry(c.Context(), entry.ID)
	if err != nil {
		// The entry is persisted and waiting; a later sweep can still match it.
		log.Printf("[POOL] ⚠️ Synchronous match for entry %s failed: %v", entry.ID, err)
	}

	// Re-read so the response reflects the post-match state.
	if err := s.DB.First(entry, "id = ?", entry.ID).Error; err != nil {
		log.Printf("[POOL] DB error re-reading entry %s: %v", entry.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	resp := fiber.Map{"entry": entry, "status": entry.Status}
	if challenge != nil {
		resp["challenge"] = challenge
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetMyEntries lists the authenticated user's entries, optionally filtered
// by status, newest first.
func (s *EntryService) GetMyEntries(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	query := s.DB.Where("external_user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var entries []models.PoolEntry
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		log.Printf("[POOL] DB error fetching entries for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch entries"})
	}
	return c.JSON(entries)
}

// CancelEntry performs the conditional waiting→cancelled transition. If the
// Matcher claimed the entry first, the cancellation is dropped and the user
// is told they are already matched.
func (s *EntryService) CancelEntry(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	entryID := c.Params("id")
	if _, err := uuid.Parse(entryID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid entry ID"})
	}

	var entry models.PoolEntry
	if err := s.DB.Where("id = ? AND external_user_id = ?", entryID, userID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Entry not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	res := s.DB.Model(&models.PoolEntry{}).
		Where("id = ? AND status = ?", entryID, models.EntryStatusWaiting).
		Update("status", models.EntryStatusCancelled)
	if res.Error != nil {
		log.Printf("[POOL] DB error cancelling entry %s: %v", entryID, res.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to cancel entry"})
	}
	if res.RowsAffected != 1 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Entry already matched, cannot cancel"})
	}

	log.Printf("[POOL] Entry %s cancelled by %s", entryID, userID)
	return c.JSON(fiber.Map{"message": "Entry cancelled", "entry_id": entryID})
}

// ExpireStaleEntries marks every waiting entry whose latest_start_date has
// passed as expired. Matched and cancelled entries are never touched; the
// per-row conditional update makes overlapping sweeps harmless.
func (s *EntryService) ExpireStaleEntries() {
	now := time.Now()

	var stale []models.PoolEntry
	if err := s.DB.Where("status = ? AND latest_start_date < ?", models.EntryStatusWaiting, now).
		Find(&stale).Error; err != nil {
		log.Printf("[POOL] ❌ Expiry sweep query failed: %v", err)
		return
	}

	expired := 0
	for _, entry := range stale {
		res := s.DB.Model(&models.PoolEntry{}).
			Where("id = ? AND status = ?", entry.ID, models.EntryStatusWaiting).
			Update("status", models.EntryStatusExpired)
		if res.Error != nil {
			log.Printf("[POOL] ⚠️ Failed to expire entry %s: %v", entry.ID, res.Error)
			continue
		}
		if res.RowsAffected != 1 {
			continue // matched or cancelled in between
		}
		expired++
		s.Events.Publish(context.Background(), PoolEvent{
			Type:    EventEntryExpired,
			EntryID: entry.ID,
			UserID:  entry.ExternalUserID,
		})
	}
	if expired > 0 {
		log.Printf("[POOL] Expiry sweep marked %d entrie(s) expired", expired)
	}
}
