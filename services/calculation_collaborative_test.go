package services

import (
	"context"
	"errors"
	"testing"

	"fitness-competition-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collaborativeFixture() *fakeStore {
	store := newFakeStore()
	comp := stepsCompetition("c1")
	comp.Mode = models.ModeCollaborative
	goal := 1000000.0
	comp.GoalValue = &goal
	store.competitions["c1"] = comp
	return store
}

func TestCollaborative_ProgressConservation(t *testing.T) {
	store := collaborativeFixture()
	store.participants["c1"] = []models.Participant{
		participant("p1", "u1", "c1"),
		participant("p2", "u2", "c1"),
	}
	store.entries["u1"] = []models.ActivityEntry{
		entry("u1", models.ActivityTypeSteps, "2025-03-02", 1000),
		entry("u1", models.ActivityTypeSteps, "2025-03-03", 2000),
	}
	store.entries["u2"] = []models.ActivityEntry{
		entry("u2", models.ActivityTypeSteps, "2025-03-02", 7000),
	}
	svc := newTestService(store)

	summary, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.UpdatedCount)
	require.NotNil(t, summary.TotalProgress)
	assert.InDelta(t, 10000.0, *summary.TotalProgress, 1e-9)
	assert.InDelta(t, 10000.0, store.progress["c1"], 1e-9)

	r1, _ := store.resultFor("c1", models.SubjectParticipant, "p1")
	r2, _ := store.resultFor("c1", models.SubjectParticipant, "p2")
	assert.InDelta(t, 3000.0, r1.CalculatedScore, 1e-9)
	assert.InDelta(t, 7000.0, r2.CalculatedScore, 1e-9)
	require.NotNil(t, r1.Rank)
	require.NotNil(t, r2.Rank)
	assert.Equal(t, 1, *r1.Rank)
	assert.Equal(t, 1, *r2.Rank)

	// progress equals the sum of every written score
	assert.InDelta(t, r1.CalculatedScore+r2.CalculatedScore, store.progress["c1"], 1e-9)
}

func TestCollaborative_FetchFailureScoresZero(t *testing.T) {
	store := collaborativeFixture()
	store.participants["c1"] = []models.Participant{
		participant("p1", "u1", "c1"),
		participant("p2", "u2", "c1"),
	}
	store.entries["u1"] = []models.ActivityEntry{
		entry("u1", models.ActivityTypeSteps, "2025-03-02", 4000),
	}
	store.failEntriesFor["u2"] = errors.New("timeout")
	svc := newTestService(store)

	summary, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err, "collaborative swallows per-participant fetch failures")
	require.True(t, summary.Success)

	r2, ok := store.resultFor("c1", models.SubjectParticipant, "p2")
	require.True(t, ok, "failed participant still gets a zero result")
	assert.Zero(t, r2.CalculatedScore)
	assert.InDelta(t, 4000.0, store.progress["c1"], 1e-9)
}

func TestCollaborative_ZeroParticipantsResetsProgress(t *testing.T) {
	store := collaborativeFixture()
	store.progress["c1"] = 1234 // stale value from a previous run
	svc := newTestService(store)

	summary, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 0, summary.UpdatedCount)
	require.NotNil(t, summary.TotalProgress)
	assert.Zero(t, *summary.TotalProgress)
	assert.Zero(t, store.progress["c1"])
}

func TestCollaborative_ManualEntriesAlwaysCount(t *testing.T) {
	store := collaborativeFixture()
	store.competitions["c1"].AllowManualActivities = false
	store.participants["c1"] = []models.Participant{participant("p1", "u1", "c1")}
	store.entries["u1"] = []models.ActivityEntry{
		entry("u1", models.ActivityTypeSteps, "2025-03-02", 2500), // manual source
	}
	svc := newTestService(store)

	summary, err := svc.CalculateCompetition(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, summary.TotalProgress)
	assert.InDelta(t, 2500.0, *summary.TotalProgress, 1e-9)
}
