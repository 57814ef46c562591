package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-challenge-system/models"
)

func TestMatchEntry_PairsCompatibleEntries(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)

	first := env.seedEntry(t, "alice", withCreatedAt(time.Now().Add(-time.Minute)))
	second := env.seedEntry(t, "bob")

	challenge, err := env.Matcher.MatchEntry(context.Background(), second.ID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	got := env.reloadChallenge(t, challenge.ID)
	assert.Equal(t, models.ChallengeStatusActive, got.Status)
	assert.Equal(t, models.PoolCategoryStrength, got.Category)
	assert.Equal(t, models.PoolGoalWorkouts, got.Type)
	assert.Len(t, got.Participants, 2)
	for _, p := range got.Participants {
		assert.Zero(t, p.CurrentValue)
	}

	// end_date = start_date + duration_days
	assert.WithinDuration(t, got.StartDate.AddDate(0, 0, 7), got.EndDate, time.Second)

	assert.Equal(t, models.EntryStatusMatched, env.reloadEntry(t, first.ID).Status)
	assert.Equal(t, models.EntryStatusMatched, env.reloadEntry(t, second.ID).Status)
	require.NotNil(t, env.reloadEntry(t, first.ID).ChallengeID)
	assert.Equal(t, challenge.ID, *env.reloadEntry(t, first.ID).ChallengeID)
}

func TestMatchEntry_NoPartnerLeavesEntryWaiting(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)

	entry := env.seedEntry(t, "alice")

	challenge, err := env.Matcher.MatchEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.Equal(t, models.EntryStatusWaiting, env.reloadEntry(t, entry.ID).Status)
}

func TestMatchEntry_TermsMustMatchExactly(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)

	env.seedEntry(t, "alice", withTerms(models.PoolCategoryStrength, models.PoolGoalWorkouts, 10, 7))
	other := env.seedEntry(t, "bob", withTerms(models.PoolCategoryStrength, models.PoolGoalWorkouts, 12, 7))

	challenge, err := env.Matcher.MatchEntry(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)

	// Different duration is just as incompatible as a different target.
	another := env.seedEntry(t, "bob", withTerms(models.PoolCategoryCardio, models.PoolGoalMinutes, 10, 7))
	challenge, err = env.Matcher.MatchEntry(context.Background(), another.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)
}

func TestMatchEntry_GenderPreferenceIsSymmetric(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)

	// Alice only wants female opponents; Bob accepts anyone. One failing
	// direction is enough to block the pairing.
	env.seedEntry(t, "alice", withGenderPref(models.GenderFemale))
	bob := env.seedEntry(t, "bob")

	challenge, err := env.Matcher.MatchEntry(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)

	// A female counterpart satisfies both directions.
	env.seedUser(t, "carol", "female", 1990)
	carol := env.seedEntry(t, "carol")
	challenge, err = env.Matcher.MatchEntry(context.Background(), carol.ID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	users := participantIDs(t, env, challenge.ID)
	assert.ElementsMatch(t, []string{"alice", "carol"}, users)
}

func TestMatchEntry_AgeWindowIsSymmetric(t *testing.T) {
	env := setupEnv(t)
	thisYear := time.Now().Year()
	env.seedUser(t, "young", "male", thisYear-20)
	env.seedUser(t, "old", "male", thisYear-50)

	env.seedEntry(t, "young", withAgeRange(18, 30))
	older := env.seedEntry(t, "old")

	challenge, err := env.Matcher.MatchEntry(context.Background(), older.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)

	env.seedUser(t, "peer", "male", thisYear-25)
	peer := env.seedEntry(t, "peer")
	challenge, err = env.Matcher.MatchEntry(context.Background(), peer.ID)
	require.NoError(t, err)
	require.NotNil(t, challenge)
}

func TestMatchEntry_MissingProfileMakesCandidateIneligible(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "bob", "male", 1993)

	// "ghost" submitted first but has no synced profile.
	env.seedEntry(t, "ghost", withCreatedAt(time.Now().Add(-time.Minute)))
	bob := env.seedEntry(t, "bob")

	challenge, err := env.Matcher.MatchEntry(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.Equal(t, models.EntryStatusWaiting, env.reloadEntry(t, bob.ID).Status)
}

func TestMatchEntry_FIFOAdmitsOldestCompatibleFirst(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)
	env.seedUser(t, "carol", "female", 1990)

	oldest := env.seedEntry(t, "alice", withCreatedAt(time.Now().Add(-2*time.Hour)))
	env.seedEntry(t, "bob", withCreatedAt(time.Now().Add(-time.Hour)))
	anchor := env.seedEntry(t, "carol")

	challenge, err := env.Matcher.MatchEntry(context.Background(), anchor.ID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	users := participantIDs(t, env, challenge.ID)
	assert.ElementsMatch(t, []string{"carol", "alice"}, users)
	assert.Equal(t, models.EntryStatusMatched, env.reloadEntry(t, oldest.ID).Status)
}

func TestMatchEntry_GroupFormationUpToSmallestCapacity(t *testing.T) {
	env := setupEnv(t)
	for _, u := range []string{"a", "b", "c", "d"} {
		env.seedUser(t, u, "male", 1990)
	}

	env.seedEntry(t, "a", withGroup(4), withCreatedAt(time.Now().Add(-3*time.Hour)))
	env.seedEntry(t, "b", withGroup(3), withCreatedAt(time.Now().Add(-2*time.Hour)))
	env.seedEntry(t, "c", withGroup(4), withCreatedAt(time.Now().Add(-time.Hour)))
	d := env.seedEntry(t, "d", withGroup(4))

	challenge, err := env.Matcher.MatchEntry(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	// b caps the group at 3: d + a + b, c stays waiting.
	users := participantIDs(t, env, challenge.ID)
	assert.Len(t, users, 3)
	assert.ElementsMatch(t, []string{"d", "a", "b"}, users)

	var waiting []models.PoolEntry
	require.NoError(t, env.DB.Where("status = ?", models.EntryStatusWaiting).Find(&waiting).Error)
	require.Len(t, waiting, 1)
	assert.Equal(t, "c", waiting[0].ExternalUserID)
}

func TestMatchEntry_SoloPreferenceForcesPair(t *testing.T) {
	env := setupEnv(t)
	for _, u := range []string{"a", "b", "c"} {
		env.seedUser(t, u, "male", 1990)
	}

	// a wants a big group, but b insists on head-to-head.
	env.seedEntry(t, "a", withGroup(5), withCreatedAt(time.Now().Add(-2*time.Hour)))
	env.seedEntry(t, "b", withCreatedAt(time.Now().Add(-time.Hour)))
	anchor := env.seedEntry(t, "c", withGroup(5))

	challenge, err := env.Matcher.MatchEntry(context.Background(), anchor.ID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	// c pairs with a (oldest); admitting b as a third would violate b's cap.
	users := participantIDs(t, env, challenge.ID)
	assert.Len(t, users, 2)
	assert.ElementsMatch(t, []string{"c", "a"}, users)
}

func TestMatchEntry_ExpiredDeadlineNeverConsidered(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)

	stale := env.seedEntry(t, "alice", withDeadline(time.Now().Add(-time.Minute)))
	fresh := env.seedEntry(t, "bob")

	challenge, err := env.Matcher.MatchEntry(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)

	// Anchoring on the stale entry itself is a no-op too.
	challenge, err = env.Matcher.MatchEntry(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.Equal(t, models.EntryStatusWaiting, env.reloadEntry(t, stale.ID).Status)
}

func TestCreateChallenge_AbandonsGroupOnLostClaim(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)

	a := env.seedEntry(t, "alice")
	b := env.seedEntry(t, "bob")

	aProfile, err := env.Profiles.GetProfile("alice")
	require.NoError(t, err)
	bProfile, err := env.Profiles.GetProfile("bob")
	require.NoError(t, err)

	// Another invocation claims bob's entry between formation and claim.
	require.NoError(t, env.DB.Model(&models.PoolEntry{}).
		Where("id = ?", b.ID).
		Update("status", models.EntryStatusMatched).Error)

	group := []member{
		{entry: *a, profile: aProfile},
		{entry: *b, profile: bProfile},
	}
	_, err = env.Matcher.createChallenge(group)
	require.ErrorIs(t, err, ErrEntryClaimed)

	// The rollback left no partial state behind: alice is still waiting
	// and no challenge or participant row was persisted.
	assert.Equal(t, models.EntryStatusWaiting, env.reloadEntry(t, a.ID).Status)
	var challenges int64
	require.NoError(t, env.DB.Model(&models.PoolChallenge{}).Count(&challenges).Error)
	assert.Zero(t, challenges)
	var participants int64
	require.NoError(t, env.DB.Model(&models.PoolParticipant{}).Count(&participants).Error)
	assert.Zero(t, participants)
}

func TestMatchEntry_ClaimedEntryNeverRematched(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)
	env.seedUser(t, "carol", "female", 1990)

	env.seedEntry(t, "alice", withCreatedAt(time.Now().Add(-2*time.Hour)))
	b := env.seedEntry(t, "bob", withCreatedAt(time.Now().Add(-time.Hour)))

	first, err := env.Matcher.MatchEntry(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	// carol arrives later; the already-matched entries must not be claimed
	// a second time.
	c := env.seedEntry(t, "carol")
	second, err := env.Matcher.MatchEntry(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, second)

	var count int64
	require.NoError(t, env.DB.Model(&models.PoolParticipant{}).
		Where("external_user_id IN ?", []string{"alice", "bob"}).
		Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSweepWaiting_BatchesCompatibleEntries(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice", "female", 1995)
	env.seedUser(t, "bob", "male", 1993)

	a := env.seedEntry(t, "alice", withCreatedAt(time.Now().Add(-time.Hour)))
	b := env.seedEntry(t, "bob")

	env.Matcher.SweepWaiting(context.Background())

	assert.Equal(t, models.EntryStatusMatched, env.reloadEntry(t, a.ID).Status)
	assert.Equal(t, models.EntryStatusMatched, env.reloadEntry(t, b.ID).Status)

	var challenges int64
	require.NoError(t, env.DB.Model(&models.PoolChallenge{}).Count(&challenges).Error)
	assert.Equal(t, int64(1), challenges)
}

func participantIDs(t *testing.T, env *testEnv, challengeID string) []string {
	t.Helper()
	var participants []models.PoolParticipant
	require.NoError(t, env.DB.Where("challenge_id = ?", challengeID).Find(&participants).Error)
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ExternalUserID)
	}
	return ids
}
