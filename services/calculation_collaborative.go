package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fitness-competition-service/models"

	"github.com/google/uuid"
)

// calculateCollaborative pools every active participant's total toward
// one shared goal. There is no leaderboard: every result is rank 1, and
// the collaborative progress on the competition is always rewritten to
// the exact sum of this run's scores, including the zero contributors.
func (s *CalculationService) calculateCollaborative(ctx context.Context, comp *models.Competition) (models.CalculationSummary, error) {
	participants, err := s.store.ListActiveParticipants(ctx, comp.ID)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "failed to load participants", Error: err.Error()}, err
	}
	if len(participants) == 0 {
		if err := s.store.UpdateCollaborativeProgress(ctx, comp.ID, 0); err != nil {
			return models.CalculationSummary{Success: false, Message: "progress update failed", Error: err.Error()}, err
		}
		zero := 0.0
		return models.CalculationSummary{
			Success:       true,
			Message:       "No active participants",
			UpdatedCount:  0,
			TotalProgress: &zero,
		}, nil
	}

	window := comp.EffectiveWindow()
	totals := make([]float64, len(participants))
	counts := make([]int, len(participants))

	// A participant whose fetch fails contributes zero instead of
	// sinking the whole run.
	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p models.Participant) {
			defer wg.Done()
			entries, err := s.store.ListActivityEntries(ctx, p.UserID, comp.ActivityType, window)
			if err != nil {
				s.logger.Warn("collaborative fetch failed, scoring zero",
					"competition_id", comp.ID, "participant_id", p.ID, "error", err)
				return
			}
			entries = filterEntries(entries, true)
			for _, e := range entries {
				totals[i] += e.Value
			}
			counts[i] = len(entries)
		}(i, p)
	}
	wg.Wait()

	prior, err := s.priorResultsBySubject(ctx, comp.ID, models.SubjectParticipant, participantIDs(participants))
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "failed to load prior results", Error: err.Error()}, err
	}

	now := time.Now()
	rankOne := 1
	totalProgress := 0.0
	results := make([]models.CalculationResult, 0, len(participants))
	for i, p := range participants {
		totalProgress += totals[i]

		id := uuid.NewString()
		if prev := prior[p.ID]; prev != nil {
			id = prev.ID
		}
		rank := rankOne
		results = append(results, models.CalculationResult{
			ID:                id,
			CompetitionID:     comp.ID,
			SubjectType:       models.SubjectParticipant,
			SubjectID:         p.ID,
			CalculatedScore:   totals[i],
			CalculationMethod: comp.ScoringMethod,
			CalculationData: models.CalculationData{
				TotalValue:   totals[i],
				CurrentValue: totals[i],
				GoalValue:    comp.GoalValue,
			},
			ActivityEntriesCount: counts[i],
			Rank:                 &rank,
			CalculatedAt:         now,
		})
	}

	if err := s.store.UpsertCalculationResults(ctx, results); err != nil {
		return models.CalculationSummary{Success: false, Message: "upsert failed", Error: err.Error()}, err
	}
	if err := s.store.UpdateCollaborativeProgress(ctx, comp.ID, totalProgress); err != nil {
		return models.CalculationSummary{Success: false, Message: "progress update failed", Error: err.Error()}, err
	}

	return models.CalculationSummary{
		Success:       true,
		Message:       fmt.Sprintf("Calculated %d participants, total progress %.2f", len(results), totalProgress),
		UpdatedCount:  len(results),
		TotalProgress: &totalProgress,
	}, nil
}
