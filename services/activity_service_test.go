package services

import (
	"testing"
	"time"

	"fitness-competition-service/models"

	"github.com/stretchr/testify/assert"
)

func TestCompetitionMatchesEntry(t *testing.T) {
	comp := stepsCompetition("c1")
	manual := entry("u1", models.ActivityTypeSteps, "2025-03-10", 5000)
	synced := entry("u1", models.ActivityTypeSteps, "2025-03-10", 5000)
	synced.Source = "fitbit"

	t.Run("in-window entry matches", func(t *testing.T) {
		assert.True(t, competitionMatchesEntry(comp, &manual))
	})

	t.Run("entry outside window does not match", func(t *testing.T) {
		early := entry("u1", models.ActivityTypeSteps, "2025-02-10", 5000)
		assert.False(t, competitionMatchesEntry(comp, &early))
	})

	t.Run("actual dates narrow the window", func(t *testing.T) {
		narrowed := *comp
		actualStart := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
		narrowed.ActualStartDate = &actualStart
		assert.False(t, competitionMatchesEntry(&narrowed, &manual))
	})

	t.Run("manual entry skipped when disallowed", func(t *testing.T) {
		strict := *comp
		strict.AllowManualActivities = false
		assert.False(t, competitionMatchesEntry(&strict, &manual))
		assert.True(t, competitionMatchesEntry(&strict, &synced))
	})

	t.Run("team_v2 and collaborative always take manual entries", func(t *testing.T) {
		teamV2 := *comp
		teamV2.Mode = models.ModeTeamV2
		teamV2.AllowManualActivities = false
		assert.True(t, competitionMatchesEntry(&teamV2, &manual))

		collab := *comp
		collab.Mode = models.ModeCollaborative
		collab.AllowManualActivities = false
		assert.True(t, competitionMatchesEntry(&collab, &manual))
	})
}
