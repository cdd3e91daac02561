package services

import (
	"context"
	"fmt"
	"sort"

	"fitness-competition-service/models"
)

// calculateTeamV2 scores the dedicated Team/TeamMember tables rather
// than generic participant rows. Weight competitions score pounds lost
// (first value minus last, baseline-anchored); every other activity type
// accumulates. Manual entries always count in this mode. Teams are
// re-ranked by total score descending: both pounds lost and step totals
// are "more is better" once normalized.
func (s *CalculationService) calculateTeamV2(ctx context.Context, comp *models.Competition) (models.CalculationSummary, error) {
	teams, err := s.store.ListActiveTeams(ctx, comp.ID)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "failed to load teams", Error: err.Error()}, err
	}
	if len(teams) == 0 {
		return models.CalculationSummary{Success: true, Message: "No active teams", UpdatedCount: 0}, nil
	}

	window := comp.EffectiveWindow()
	for i := range teams {
		team := &teams[i]
		totalScore := 0.0
		memberCount := 0

		for j := range team.Members {
			member := &team.Members[j]
			if !member.IsActive {
				continue
			}
			memberCount++

			score, starting, current, err := s.scoreTeamV2Member(ctx, comp, member.UserID, window)
			if err != nil {
				return models.CalculationSummary{Success: false, Message: "member calculation failed", Error: err.Error()},
					fmt.Errorf("team %s member %s: %w", team.ID, member.ID, err)
			}

			member.IndividualScore = score
			member.StartingValue = starting
			member.CurrentValue = current
			member.ContributionValue = score
			if err := s.store.UpdateTeamMember(ctx, member); err != nil {
				return models.CalculationSummary{Success: false, Message: "member update failed", Error: err.Error()}, err
			}
			totalScore += score
		}

		team.TotalScore = totalScore
		team.MemberCount = memberCount
		if err := s.store.UpdateTeamTotals(ctx, team.ID, totalScore, memberCount); err != nil {
			return models.CalculationSummary{Success: false, Message: "team update failed", Error: err.Error()}, err
		}
	}

	// Strictly sequential ranks, highest total first; ties break on team id.
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].TotalScore != teams[j].TotalScore {
			return teams[i].TotalScore > teams[j].TotalScore
		}
		return teams[i].ID < teams[j].ID
	})
	for i, team := range teams {
		if err := s.store.UpdateTeamRank(ctx, team.ID, i+1); err != nil {
			return models.CalculationSummary{Success: false, Message: "team ranking failed", Error: err.Error()}, err
		}
	}

	return models.CalculationSummary{
		Success:      true,
		Message:      fmt.Sprintf("Calculated %d teams", len(teams)),
		UpdatedCount: len(teams),
	}, nil
}

// scoreTeamV2Member computes one member's score plus their starting and
// current values. Weight needs at least two data points for a non-zero
// score; a single point still records starting/current so the member is
// not invisible on the board.
func (s *CalculationService) scoreTeamV2Member(ctx context.Context, comp *models.Competition, userID string, window models.Window) (score, starting, current float64, err error) {
	entries, err := s.store.ListActivityEntries(ctx, userID, comp.ActivityType, window)
	if err != nil {
		return 0, 0, 0, err
	}
	entries = filterEntries(entries, true)

	if models.IsCumulativeActivityType(comp.ActivityType) {
		for _, e := range entries {
			score += e.Value
		}
		if len(entries) > 0 {
			starting = entries[0].Value
			current = entries[len(entries)-1].Value
		}
		return score, starting, current, nil
	}

	baseline, err := s.store.GetBaselineEntry(ctx, userID, comp.ActivityType)
	if err != nil {
		return 0, 0, 0, err
	}
	entries = prependBaseline(entries, baseline)

	if len(entries) == 0 {
		return 0, 0, 0, nil
	}
	starting = entries[0].Value
	current = entries[len(entries)-1].Value
	if len(entries) < 2 {
		return 0, starting, current, nil
	}
	return starting - current, starting, current, nil
}
