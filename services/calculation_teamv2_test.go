package services

import (
	"context"
	"testing"

	"fitness-competition-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teamV2Fixture(activityType string) *fakeStore {
	store := newFakeStore()
	comp := weightCompetition("c1")
	comp.Mode = models.ModeTeamV2
	comp.ActivityType = activityType
	store.competitions["c1"] = comp

	store.teams["c1"] = []models.Team{
		{
			ID: "team-a", CompetitionID: "c1", Name: "Alpha", IsActive: true,
			Members: []models.TeamMember{
				{ID: "m1", TeamID: "team-a", UserID: "u1", IsActive: true},
				{ID: "m2", TeamID: "team-a", UserID: "u2", IsActive: true},
			},
		},
		{
			ID: "team-b", CompetitionID: "c1", Name: "Bravo", IsActive: true,
			Members: []models.TeamMember{
				{ID: "m3", TeamID: "team-b", UserID: "u3", IsActive: true},
				{ID: "m4", TeamID: "team-b", UserID: "u4", IsActive: false}, // inactive, never scored
			},
		},
	}
	return store
}

func TestTeamV2_WeightPoundsLost(t *testing.T) {
	store := teamV2Fixture(models.ActivityTypeWeight)
	store.entries["u1"] = []models.ActivityEntry{
		entry("u1", models.ActivityTypeWeight, "2025-03-01", 200),
		entry("u1", models.ActivityTypeWeight, "2025-03-20", 190),
	}
	store.entries["u2"] = []models.ActivityEntry{
		entry("u2", models.ActivityTypeWeight, "2025-03-02", 150),
		entry("u2", models.ActivityTypeWeight, "2025-03-21", 145),
	}
	store.entries["u3"] = []models.ActivityEntry{
		entry("u3", models.ActivityTypeWeight, "2025-03-03", 180),
		entry("u3", models.ActivityTypeWeight, "2025-03-22", 172),
	}
	svc := newTestService(store)

	summary, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.UpdatedCount)

	m1 := store.memberUpdates["m1"]
	assert.InDelta(t, 10.0, m1.IndividualScore, 1e-9)
	assert.InDelta(t, 200.0, m1.StartingValue, 1e-9)
	assert.InDelta(t, 190.0, m1.CurrentValue, 1e-9)
	assert.InDelta(t, 10.0, m1.ContributionValue, 1e-9)

	m2 := store.memberUpdates["m2"]
	assert.InDelta(t, 5.0, m2.IndividualScore, 1e-9)

	_, scored := store.memberUpdates["m4"]
	assert.False(t, scored, "inactive members are not scored")

	teamA := store.teamTotals["team-a"]
	assert.InDelta(t, 15.0, teamA.TotalScore, 1e-9)
	assert.Equal(t, 2, teamA.MemberCount)

	teamB := store.teamTotals["team-b"]
	assert.InDelta(t, 8.0, teamB.TotalScore, 1e-9)
	assert.Equal(t, 1, teamB.MemberCount)

	// More pounds lost ranks first regardless of the competition's
	// configured ranking direction.
	assert.Equal(t, 1, store.teamRanks["team-a"])
	assert.Equal(t, 2, store.teamRanks["team-b"])
}

func TestTeamV2_SinglePointScoresZero(t *testing.T) {
	store := teamV2Fixture(models.ActivityTypeWeight)
	store.entries["u1"] = []models.ActivityEntry{
		entry("u1", models.ActivityTypeWeight, "2025-03-01", 200),
	}
	svc := newTestService(store)

	_, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)

	m1 := store.memberUpdates["m1"]
	assert.Zero(t, m1.IndividualScore)
	assert.InDelta(t, 200.0, m1.StartingValue, 1e-9)
	assert.InDelta(t, 200.0, m1.CurrentValue, 1e-9)
}

func TestTeamV2_WeightBaselineAnchorsStart(t *testing.T) {
	store := teamV2Fixture(models.ActivityTypeWeight)
	store.entries["u1"] = []models.ActivityEntry{
		entry("u1", models.ActivityTypeWeight, "2025-02-10", 205), // pre-window baseline
		entry("u1", models.ActivityTypeWeight, "2025-03-15", 195),
	}
	svc := newTestService(store)

	_, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)

	m1 := store.memberUpdates["m1"]
	assert.InDelta(t, 205.0, m1.StartingValue, 1e-9)
	assert.InDelta(t, 10.0, m1.IndividualScore, 1e-9)
}

func TestTeamV2_StepsSumIncludesManual(t *testing.T) {
	store := teamV2Fixture(models.ActivityTypeSteps)
	// team_v2 counts manual entries even though the competition
	// disallows them elsewhere
	store.competitions["c1"].AllowManualActivities = false

	synced := entry("u1", models.ActivityTypeSteps, "2025-03-02", 4000)
	synced.Source = "garmin"
	store.entries["u1"] = []models.ActivityEntry{
		synced,
		entry("u1", models.ActivityTypeSteps, "2025-03-03", 6000), // manual
	}
	svc := newTestService(store)

	_, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)

	m1 := store.memberUpdates["m1"]
	assert.InDelta(t, 10000.0, m1.IndividualScore, 1e-9)
	assert.InDelta(t, 10000.0, store.teamTotals["team-a"].TotalScore, 1e-9)
}

func TestTeamV2_NoTeams(t *testing.T) {
	store := newFakeStore()
	comp := weightCompetition("c1")
	comp.Mode = models.ModeTeamV2
	store.competitions["c1"] = comp
	svc := newTestService(store)

	summary, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 0, summary.UpdatedCount)
}
