package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pool-challenge-system/models"
)

// testEnv bundles every engine service over an isolated in-memory SQLite
// database and a miniredis instance. Each test gets its own.
type testEnv struct {
	DB          *gorm.DB
	Redis       *miniredis.Miniredis
	RedisClient *redis.Client
	Events      *EventPublisher
	Profiles    *ProfileService
	Progression *ProgressionService
	Matcher     *MatcherService
	Judge       *JudgeService
	Entries     *EntryService
	Challenges  *ChallengeService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.PoolEntry{},
		&models.PoolChallenge{},
		&models.PoolParticipant{},
		&models.PoolMessage{},
		&models.PoolUser{},
		&models.UserProgress{},
		&models.RewardGrant{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	events := NewEventPublisher(client)
	profiles := NewProfileService(db)
	progression := NewProgressionService(db)
	matcher := NewMatcherService(db, profiles, progression, events)
	judge := NewJudgeService(db, progression, events)
	entries := NewEntryService(db, matcher, events)
	challenges := NewChallengeService(db, judge)

	return &testEnv{
		DB:          db,
		Redis:       mr,
		RedisClient: client,
		Events:      events,
		Profiles:    profiles,
		Progression: progression,
		Matcher:     matcher,
		Judge:       judge,
		Entries:     entries,
		Challenges:  challenges,
	}
}

// seedUser inserts a profile snapshot the matcher can evaluate.
func (env *testEnv) seedUser(t *testing.T, userID, gender string, birthYear int) {
	t.Helper()
	require.NoError(t, env.DB.Create(&models.PoolUser{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Username:       "user-" + userID,
		Gender:         gender,
		BirthYear:      birthYear,
	}).Error)
}

// entryOption tweaks a default waiting entry before insertion.
type entryOption func(*models.PoolEntry)

func withGenderPref(g models.PreferredGender) entryOption {
	return func(e *models.PoolEntry) { e.PreferredGender = &g }
}

func withAgeRange(min, max int) entryOption {
	return func(e *models.PoolEntry) { e.MinAge = &min; e.MaxAge = &max }
}

func withGroup(max int) entryOption {
	return func(e *models.PoolEntry) { e.AllowMultiple = true; e.MaxParticipants = max }
}

func withTerms(category models.PoolCategory, goal models.PoolGoalType, target float64, days int) entryOption {
	return func(e *models.PoolEntry) {
		e.Category = category
		e.Type = goal
		e.TargetValue = target
		e.DurationDays = days
	}
}

func withCreatedAt(at time.Time) entryOption {
	return func(e *models.PoolEntry) { e.CreatedAt = at }
}

func withDeadline(at time.Time) entryOption {
	return func(e *models.PoolEntry) { e.LatestStartDate = at }
}

// seedEntry inserts a waiting entry with sane defaults: strength/workouts,
// target 10, 7 days, no gender or age constraints, deadline in one hour.
func (env *testEnv) seedEntry(t *testing.T, userID string, opts ...entryOption) *models.PoolEntry {
	t.Helper()
	entry := &models.PoolEntry{
		ID:              uuid.NewString(),
		ExternalUserID:  userID,
		Category:        models.PoolCategoryStrength,
		Type:            models.PoolGoalWorkouts,
		TargetValue:     10,
		DurationDays:    7,
		MaxParticipants: 2,
		LatestStartDate: time.Now().Add(time.Hour),
		Status:          models.EntryStatusWaiting,
	}
	for _, opt := range opts {
		opt(entry)
	}
	require.NoError(t, env.DB.Create(entry).Error)
	return entry
}

// reload fetches the current row for an entry.
func (env *testEnv) reloadEntry(t *testing.T, id string) *models.PoolEntry {
	t.Helper()
	var entry models.PoolEntry
	require.NoError(t, env.DB.First(&entry, "id = ?", id).Error)
	return &entry
}

func (env *testEnv) reloadChallenge(t *testing.T, id string) *models.PoolChallenge {
	t.Helper()
	var challenge models.PoolChallenge
	require.NoError(t, env.DB.Preload("Participants").First(&challenge, "id = ?", id).Error)
	return &challenge
}
