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

// ErrEntryClaimed signals that a conditional waiting→matched update hit a
// row another Matcher invocation already claimed. The whole candidate group
// is abandoned and formation retried from a fresh read of the pool.
var ErrEntryClaimed = errors.New("entry already claimed by a concurrent match")

// maxClaimAttempts bounds how often a single invocation re-forms a group
// after losing a claim race. Past that the entry stays waiting and the
// periodic sweep picks it up later.
const maxClaimAttempts = 3

// MatcherService turns compatible waiting entries into active challenges.
type MatcherService struct {
	DB          *gorm.DB
	Profiles    *ProfileService
	Progression *ProgressionService
	Events      *EventPublisher
}

func NewMatcherService(db *gorm.DB, profiles *ProfileService, progression *ProgressionService, events *EventPublisher) *MatcherService {
	return &MatcherService{DB: db, Profiles: profiles, Progression: progression, Events: events}
}

// member pairs a waiting entry with its profile snapshot for the pairwise
// predicate checks during group formation.
type member struct {
	entry   models.PoolEntry
	profile *models.PoolUser
}

// MatchEntry runs one match attempt anchored on the given entry. It returns
// the created challenge, or nil when no compatible group formed and the
// entry remains waiting. Safe under concurrent invocation: every claim is a
// conditional update, and a lost race restarts formation from fresh rows.
func (s *MatcherService) MatchEntry(ctx context.Context, entryID string) (*models.PoolChallenge, error) {
	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		var anchor models.PoolEntry
		if err := s.DB.First(&anchor, "id = ?", entryID).Error; err != nil {
			return nil, err
		}
		if anchor.Status != models.EntryStatusWaiting {
			// Claimed, cancelled or expired since we were invoked — nothing to do.
			return nil, nil
		}

		group, err := s.formGroup(&anchor, time.Now())
		if err != nil {
			return nil, err
		}
		if len(group) < 2 {
			// No compatible partner yet; the anchor stays waiting.
			return nil, nil
		}

		challenge, err := s.createChallenge(group)
		if errors.Is(err, ErrEntryClaimed) {
			log.Printf("[MATCHER] Lost claim race for entry %s (attempt %d/%d), retrying with fresh pool",
				entryID, attempt, maxClaimAttempts)
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, m := range group {
			s.Events.Publish(ctx, PoolEvent{
				Type:        EventEntryMatched,
				EntryID:     m.entry.ID,
				ChallengeID: challenge.ID,
				UserID:      m.entry.ExternalUserID,
			})
		}
		log.Printf("[MATCHER] ✅ Formed challenge %s (%s/%s, target=%.1f, %d participants)",
			challenge.ID, challenge.Category, challenge.Type, challenge.TargetValue, len(group))
		return challenge, nil
	}

	log.Printf("[MATCHER] Gave up on entry %s after %d claim races; leaving it to the sweep", entryID, maxClaimAttempts)
	return nil, nil
}

// SweepWaiting re-runs matching across the whole waiting pool, oldest
// anchors first. It catches entries that arrived before any compatible
// counterpart existed and batch-forms multi-participant groups.
func (s *MatcherService) SweepWaiting(ctx context.Context) {
	var waiting []models.PoolEntry
	if err := s.DB.Where("status = ? AND latest_start_date >= ?", models.EntryStatusWaiting, time.Now()).
		Order("created_at ASC").
		Find(&waiting).Error; err != nil {
		log.Printf("[MATCHER] ❌ Sweep query failed: %v", err)
		return
	}

	matched := 0
	for _, entry := range waiting {
		challenge, err := s.MatchEntry(ctx, entry.ID)
		if err != nil {
			log.Printf("[MATCHER] ⚠️ Sweep match for entry %s failed: %v", entry.ID, err)
			continue
		}
		if challenge != nil {
			matched++
		}
	}
	if matched > 0 {
		log.Printf("[MATCHER] Sweep formed %d challenge(s) from %d waiting entries", matched, len(waiting))
	}
}

// formGroup greedily admits the oldest compatible waiting entries around the
// anchor until the lowest max_participants among admitted members is reached
// or no further compatible entry exists. A group of size 1 means no match.
func (s *MatcherService) formGroup(anchor *models.PoolEntry, now time.Time) ([]member, error) {
	if now.After(anchor.LatestStartDate) {
		// Past its deadline; the expiry sweep owns this transition.
		return nil, nil
	}

	anchorProfile, err := s.Profiles.GetProfile(anchor.ExternalUserID)
	if errors.Is(err, ErrProfileUnavailable) {
		// Without the anchor's own profile the symmetric gender/age checks
		// cannot be evaluated for anyone.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Exact-term candidates, FIFO by submission time.
	var candidates []models.PoolEntry
	if err := s.DB.Where(
		"status = ? AND id <> ? AND external_user_id <> ? AND category = ? AND type = ? AND target_value = ? AND duration_days = ? AND latest_start_date >= ?",
		models.EntryStatusWaiting, anchor.ID, anchor.ExternalUserID,
		anchor.Category, anchor.Type, anchor.TargetValue, anchor.DurationDays, now,
	).Order("created_at ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}

	group := []member{{entry: *anchor, profile: anchorProfile}}
	capacity := effectiveCapacity(anchor)

	for _, cand := range candidates {
		if len(group) >= capacity {
			break
		}
		newCapacity := capacity
		if c := effectiveCapacity(&cand); c < newCapacity {
			newCapacity = c
		}
		if len(group)+1 > newCapacity {
			continue
		}

		profile, err := s.Profiles.GetProfile(cand.ExternalUserID)
		if errors.Is(err, ErrProfileUnavailable) {
			continue // collaborator miss makes the candidate ineligible, not the run fatal
		}
		if err != nil {
			return nil, err
		}

		admissible := true
		for _, m := range group {
			if !mutuallyCompatible(m, member{entry: cand, profile: profile}, now) {
				admissible = false
				break
			}
		}
		if !admissible {
			continue
		}

		group = append(group, member{entry: cand, profile: profile})
		capacity = newCapacity
	}

	return group, nil
}

// effectiveCapacity is the largest group an entry tolerates.
func effectiveCapacity(e *models.PoolEntry) int {
	if !e.AllowMultiple {
		return 2
	}
	if e.MaxParticipants < 2 {
		return 2
	}
	return e.MaxParticipants
}

// mutuallyCompatible checks the pairwise predicate in both directions:
// distinct users, identical terms, each side's gender and age preferences
// satisfied by the other's profile, and both deadlines still open.
func mutuallyCompatible(a, b member, now time.Time) bool {
	if a.entry.ExternalUserID == b.entry.ExternalUserID {
		return false
	}
	if !a.entry.SameTerms(&b.entry) {
		return false
	}
	if !a.entry.WantsGender(b.profile.Gender) || !b.entry.WantsGender(a.profile.Gender) {
		return false
	}
	if !a.entry.WantsAge(b.profile.Age(now)) || !b.entry.WantsAge(a.profile.Age(now)) {
		return false
	}
	if now.After(a.entry.LatestStartDate) || now.After(b.entry.LatestStartDate) {
		return false
	}
	return true
}

// createChallenge claims every group member and creates the challenge plus
// its participants in a single transaction. Each claim is a conditional
// update guarded on status='waiting'; if any member was claimed concurrently
// the transaction rolls back and ErrEntryClaimed is returned — no partial
// groups are ever persisted.
func (s *MatcherService) createChallenge(group []member) (*models.PoolChallenge, error) {
	now := time.Now()
	terms := group[0].entry

	challenge := &models.PoolChallenge{
		ID:          uuid.NewString(),
		Category:    terms.Category,
		Type:        terms.Type,
		TargetValue: terms.TargetValue,
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, terms.DurationDays),
		Status:      models.ChallengeStatusActive,
		XPReward:    XPForPoolChallenge(terms.TargetValue, terms.DurationDays, len(group)),
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(challenge).Error; err != nil {
			return err
		}
		for _, m := range group {
			res := tx.Model(&models.PoolEntry{}).
				Where("id = ? AND status = ?", m.entry.ID, models.EntryStatusWaiting).
				Updates(map[string]interface{}{
					"status":       models.EntryStatusMatched,
					"challenge_id": challenge.ID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return ErrEntryClaimed
			}
			participant := models.PoolParticipant{
				ID:             uuid.NewString(),
				ChallengeID:    challenge.ID,
				ExternalUserID: m.entry.ExternalUserID,
				CurrentValue:   0,
				JoinedAt:       now,
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Counter bump is fire-and-forget: a failure here never unwinds a match.
	for _, m := range group {
		if err := s.Progression.RecordChallengeJoined(m.entry.ExternalUserID); err != nil {
			log.Printf("[MATCHER] ⚠️ Failed to bump challenge counter for %s: %v", m.entry.ExternalUserID, err)
		}
	}

	return challenge, nil
}
