package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fitness-competition-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CalculationService recomputes scores and rankings for a competition
// from its raw activity entries. Each invocation reads everything fresh
// and overwrites the competition's result rows, so runs are idempotent
// for identical inputs.
type CalculationService struct {
	store  CalculationStore
	logger *slog.Logger
}

func NewCalculationService(db *gorm.DB, logger *slog.Logger) *CalculationService {
	return NewCalculationServiceWithStore(NewCalculationStore(db), logger)
}

// NewCalculationServiceWithStore lets callers substitute the store, which
// tests use to run the engine against in-memory data.
func NewCalculationServiceWithStore(store CalculationStore, logger *slog.Logger) *CalculationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalculationService{store: store, logger: logger}
}

// CalculateCompetition recomputes every active subject's score and rank
// for one competition. A missing competition or unrecognized mode is
// reported in the summary, not returned as an error; fetch and
// persistence failures abort the run and propagate.
func (s *CalculationService) CalculateCompetition(ctx context.Context, competitionID string) (models.CalculationSummary, error) {
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		if errors.Is(err, ErrCompetitionNotFound) {
			return models.CalculationSummary{
				Success: false,
				Message: fmt.Sprintf("Competition not found: %s", competitionID),
			}, nil
		}
		return models.CalculationSummary{Success: false, Message: "failed to load competition", Error: err.Error()}, err
	}

	s.logger.Info("recalculating competition",
		"competition_id", comp.ID,
		"mode", comp.Mode,
		"activity_type", comp.ActivityType,
		"scoring_method", comp.ScoringMethod,
	)

	var summary models.CalculationSummary
	switch comp.Mode {
	case models.ModeIndividual:
		summary, err = s.calculateIndividual(ctx, comp)
	case models.ModeTeam:
		summary, err = s.calculateTeam(ctx, comp)
	case models.ModeTeamV2:
		summary, err = s.calculateTeamV2(ctx, comp)
	case models.ModeCollaborative:
		summary, err = s.calculateCollaborative(ctx, comp)
	default:
		s.logger.Warn("unknown competition mode", "competition_id", comp.ID, "mode", comp.Mode)
		return models.CalculationSummary{
			Success: false,
			Message: fmt.Sprintf("Unknown competition mode: %s", comp.Mode),
		}, nil
	}

	if err != nil {
		s.logger.Error("recalculation failed", "competition_id", comp.ID, "error", err)
		return summary, err
	}
	s.logger.Info("recalculation complete", "competition_id", comp.ID, "updated_count", summary.UpdatedCount)
	return summary, nil
}

// activityMetrics are the aggregates every scoring method draws from.
type activityMetrics struct {
	First   float64
	Last    float64
	Best    float64
	Average float64
	Total   float64
	Count   int
}

func computeMetrics(entries []models.ActivityEntry) activityMetrics {
	m := activityMetrics{Count: len(entries)}
	if len(entries) == 0 {
		return m
	}
	m.First = entries[0].Value
	m.Last = entries[len(entries)-1].Value
	m.Best = entries[0].Value
	for _, e := range entries {
		if e.Value > m.Best {
			m.Best = e.Value
		}
		m.Total += e.Value
	}
	m.Average = m.Total / float64(len(entries))
	return m
}

// scoreFor applies the competition's scoring method. An unrecognized
// method scores zero rather than failing the run.
func scoreFor(method string, m activityMetrics, startingValue float64) float64 {
	switch method {
	case models.ScoringChangePercentage:
		if startingValue == 0 {
			return 0
		}
		return (m.Last - startingValue) / startingValue * 100
	case models.ScoringTotalValue, models.ScoringCumulative:
		return m.Total
	case models.ScoringBestValue:
		return m.Best
	case models.ScoringAverageValue:
		return m.Average
	default:
		return 0
	}
}

// filterEntries drops soft-deleted entries and, when the competition
// disallows them, manual ones. The store already excludes tombstones in
// SQL; entries arriving through other paths are filtered again here.
func filterEntries(entries []models.ActivityEntry, allowManual bool) []models.ActivityEntry {
	filtered := make([]models.ActivityEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDeleted() {
			continue
		}
		if !allowManual && e.IsManual() {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// prependBaseline anchors the series on the participant's earliest-ever
// entry when it predates the first in-window entry. A baseline that
// duplicates the first entry's day and value is skipped.
func prependBaseline(entries []models.ActivityEntry, baseline *models.ActivityEntry) []models.ActivityEntry {
	if baseline == nil || baseline.IsDeleted() || len(entries) == 0 {
		return entries
	}
	if baseline.DateOnly >= entries[0].DateOnly {
		return entries
	}
	return append([]models.ActivityEntry{*baseline}, entries...)
}

type participantComputation struct {
	participant models.Participant
	metrics     activityMetrics
	err         error
}

// fetchParticipantMetrics fans out over participants, fetching each one's
// baseline and in-window entries concurrently, and waits for all of them.
func (s *CalculationService) fetchParticipantMetrics(ctx context.Context, comp *models.Competition, participants []models.Participant) []participantComputation {
	window := comp.EffectiveWindow()
	computations := make([]participantComputation, len(participants))

	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p models.Participant) {
			defer wg.Done()
			computations[i] = participantComputation{participant: p}

			entries, err := s.store.ListActivityEntries(ctx, p.UserID, comp.ActivityType, window)
			if err != nil {
				computations[i].err = err
				return
			}
			entries = filterEntries(entries, comp.AllowManualActivities)

			if comp.ActivityType == models.ActivityTypeWeight {
				baseline, err := s.store.GetBaselineEntry(ctx, p.UserID, comp.ActivityType)
				if err != nil {
					computations[i].err = err
					return
				}
				entries = prependBaseline(entries, baseline)
			}

			computations[i].metrics = computeMetrics(entries)
		}(i, p)
	}
	wg.Wait()
	return computations
}

// buildParticipantResult turns one participant's metrics into a result
// row. The starting value sticks once established: a prior result's
// starting_value always wins over the freshly computed first value, so
// backfilled entries cannot drift the baseline mid-competition.
func (s *CalculationService) buildParticipantResult(comp *models.Competition, c participantComputation, prior *models.CalculationResult, now time.Time) models.CalculationResult {
	m := c.metrics

	startingValue := m.First
	if prior != nil && prior.CalculationData.StartingValue != 0 {
		startingValue = prior.CalculationData.StartingValue
	}
	currentValue := m.Last
	if m.Count == 0 {
		currentValue = startingValue
	}

	var score float64
	if m.Count > 0 {
		score = scoreFor(comp.ScoringMethod, m, startingValue)
	}

	change := currentValue - startingValue
	changePct := 0.0
	if startingValue != 0 {
		changePct = change / startingValue * 100
	}

	id := uuid.NewString()
	if prior != nil {
		id = prior.ID
	}

	return models.CalculationResult{
		ID:                id,
		CompetitionID:     comp.ID,
		SubjectType:       models.SubjectParticipant,
		SubjectID:         c.participant.ID,
		CalculatedScore:   score,
		CalculationMethod: comp.ScoringMethod,
		CalculationData: models.CalculationData{
			StartingValue:         startingValue,
			CurrentValue:          currentValue,
			ValueChange:           change,
			ValueChangePercentage: changePct,
			BestValue:             m.Best,
			AverageValue:          m.Average,
			TotalValue:            m.Total,
			TeamID:                c.participant.TeamID,
		},
		ActivityEntriesCount: m.Count,
		CalculatedAt:         now,
	}
}

func (s *CalculationService) calculateIndividual(ctx context.Context, comp *models.Competition) (models.CalculationSummary, error) {
	participants, err := s.store.ListActiveParticipants(ctx, comp.ID)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "failed to load participants", Error: err.Error()}, err
	}
	if len(participants) == 0 {
		return models.CalculationSummary{Success: true, Message: "No active participants", UpdatedCount: 0}, nil
	}

	results, err := s.computeAndUpsertParticipants(ctx, comp, participants)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "calculation failed", Error: err.Error()}, err
	}

	if err := s.assignRanks(ctx, results, comp.RankingDirection); err != nil {
		return models.CalculationSummary{Success: false, Message: "ranking failed", Error: err.Error()}, err
	}

	return models.CalculationSummary{
		Success:      true,
		Message:      fmt.Sprintf("Calculated %d participants", len(results)),
		UpdatedCount: len(results),
	}, nil
}

// computeAndUpsertParticipants is the shared individual/team per-
// participant path: fan out fetches, bail on the first failure, reuse
// prior starting values, and write everything back in one batch.
func (s *CalculationService) computeAndUpsertParticipants(ctx context.Context, comp *models.Competition, participants []models.Participant) ([]models.CalculationResult, error) {
	computations := s.fetchParticipantMetrics(ctx, comp, participants)
	for _, c := range computations {
		if c.err != nil {
			return nil, fmt.Errorf("participant %s: %w", c.participant.ID, c.err)
		}
	}

	prior, err := s.priorResultsBySubject(ctx, comp.ID, models.SubjectParticipant, participantIDs(participants))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]models.CalculationResult, 0, len(computations))
	for _, c := range computations {
		results = append(results, s.buildParticipantResult(comp, c, prior[c.participant.ID], now))
	}

	if err := s.store.UpsertCalculationResults(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *CalculationService) calculateTeam(ctx context.Context, comp *models.Competition) (models.CalculationSummary, error) {
	all, err := s.store.ListActiveParticipants(ctx, comp.ID)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "failed to load participants", Error: err.Error()}, err
	}

	participants := make([]models.Participant, 0, len(all))
	for _, p := range all {
		if p.TeamID != nil && *p.TeamID != "" {
			participants = append(participants, p)
		}
	}
	if len(participants) == 0 {
		return models.CalculationSummary{Success: true, Message: "No active participants", UpdatedCount: 0}, nil
	}

	memberResults, err := s.computeAndUpsertParticipants(ctx, comp, participants)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "calculation failed", Error: err.Error()}, err
	}
	if err := s.assignRanks(ctx, memberResults, comp.RankingDirection); err != nil {
		return models.CalculationSummary{Success: false, Message: "ranking failed", Error: err.Error()}, err
	}

	teamResults, err := s.aggregateTeamResults(ctx, comp, memberResults)
	if err != nil {
		return models.CalculationSummary{Success: false, Message: "team aggregation failed", Error: err.Error()}, err
	}
	if err := s.assignRanks(ctx, teamResults, comp.RankingDirection); err != nil {
		return models.CalculationSummary{Success: false, Message: "ranking failed", Error: err.Error()}, err
	}

	return models.CalculationSummary{
		Success:      true,
		Message:      fmt.Sprintf("Calculated %d participants across %d teams", len(memberResults), len(teamResults)),
		UpdatedCount: len(memberResults) + len(teamResults),
	}, nil
}

// aggregateTeamResults rolls member scores up into one result per team
// using the competition's team scoring method (sum unless configured
// otherwise).
func (s *CalculationService) aggregateTeamResults(ctx context.Context, comp *models.Competition, memberResults []models.CalculationResult) ([]models.CalculationResult, error) {
	byTeam := make(map[string][]models.CalculationResult)
	teamIDs := make([]string, 0)
	for _, r := range memberResults {
		teamID := ""
		if r.CalculationData.TeamID != nil {
			teamID = *r.CalculationData.TeamID
		}
		if teamID == "" {
			continue
		}
		if _, seen := byTeam[teamID]; !seen {
			teamIDs = append(teamIDs, teamID)
		}
		byTeam[teamID] = append(byTeam[teamID], r)
	}

	teamMethod := comp.TeamScoringMethod
	if teamMethod == "" {
		teamMethod = models.TeamScoringSum
	}

	prior, err := s.priorResultsBySubject(ctx, comp.ID, models.SubjectTeam, teamIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]models.CalculationResult, 0, len(teamIDs))
	for _, teamID := range teamIDs {
		members := byTeam[teamID]

		var sum, best float64
		entriesCount := 0
		for i, m := range members {
			sum += m.CalculatedScore
			entriesCount += m.ActivityEntriesCount
			if i == 0 || betterScore(m.CalculatedScore, best, comp.RankingDirection) {
				best = m.CalculatedScore
			}
		}
		average := sum / float64(len(members))

		var teamScore float64
		switch teamMethod {
		case models.TeamScoringAverage:
			teamScore = average
		case models.TeamScoringBest:
			teamScore = best
		default:
			teamScore = sum
		}

		id := uuid.NewString()
		if p := prior[teamID]; p != nil {
			id = p.ID
		}

		results = append(results, models.CalculationResult{
			ID:                id,
			CompetitionID:     comp.ID,
			SubjectType:       models.SubjectTeam,
			SubjectID:         teamID,
			CalculatedScore:   teamScore,
			CalculationMethod: fmt.Sprintf("%s_%s", comp.ScoringMethod, teamMethod),
			CalculationData: models.CalculationData{
				TotalValue:   sum,
				AverageValue: average,
				BestValue:    best,
			},
			ActivityEntriesCount: entriesCount,
			CalculatedAt:         now,
		})
	}

	if err := s.store.UpsertCalculationResults(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// betterScore reports whether a beats b under the ranking direction.
func betterScore(a, b float64, direction string) bool {
	if direction == "asc" {
		return a < b
	}
	return a > b
}

// assignRanks sorts the run's results by score per the ranking direction
// and writes back strictly sequential 1-based ranks. Equal scores do not
// share a rank; ties break on subject id so leaderboards are stable
// across runs.
func (s *CalculationService) assignRanks(ctx context.Context, results []models.CalculationResult, direction string) error {
	if len(results) == 0 {
		return nil
	}
	ranked := make([]models.CalculationResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CalculatedScore != ranked[j].CalculatedScore {
			return betterScore(ranked[i].CalculatedScore, ranked[j].CalculatedScore, direction)
		}
		return ranked[i].SubjectID < ranked[j].SubjectID
	})
	for i, r := range ranked {
		if err := s.store.UpdateResultRank(ctx, r.ID, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *CalculationService) priorResultsBySubject(ctx context.Context, competitionID, subjectType string, subjectIDs []string) (map[string]*models.CalculationResult, error) {
	existing, err := s.store.ListCalculationResults(ctx, competitionID, subjectType, subjectIDs)
	if err != nil {
		return nil, err
	}
	prior := make(map[string]*models.CalculationResult, len(existing))
	for i := range existing {
		prior[existing[i].SubjectID] = &existing[i]
	}
	return prior, nil
}

// SeedBaselineResults writes initial zero-score results for a weight
// competition's active participants, anchoring each starting value on the
// participant's earliest-ever entry. The status scheduler runs this when
// the competition transitions to started, before the first recalculation.
func (s *CalculationService) SeedBaselineResults(ctx context.Context, comp *models.Competition) error {
	if comp.ActivityType != models.ActivityTypeWeight {
		return nil
	}
	participants, err := s.store.ListActiveParticipants(ctx, comp.ID)
	if err != nil {
		return err
	}
	if len(participants) == 0 {
		return nil
	}

	prior, err := s.priorResultsBySubject(ctx, comp.ID, models.SubjectParticipant, participantIDs(participants))
	if err != nil {
		return err
	}

	now := time.Now()
	results := make([]models.CalculationResult, 0, len(participants))
	for _, p := range participants {
		if prior[p.ID] != nil {
			continue
		}
		baseline, err := s.store.GetBaselineEntry(ctx, p.UserID, comp.ActivityType)
		if err != nil {
			return fmt.Errorf("participant %s: %w", p.ID, err)
		}
		if baseline == nil {
			continue
		}
		results = append(results, models.CalculationResult{
			ID:                uuid.NewString(),
			CompetitionID:     comp.ID,
			SubjectType:       models.SubjectParticipant,
			SubjectID:         p.ID,
			CalculationMethod: comp.ScoringMethod,
			CalculationData: models.CalculationData{
				StartingValue: baseline.Value,
				CurrentValue:  baseline.Value,
			},
			CalculatedAt: now,
		})
	}
	if len(results) == 0 {
		return nil
	}

	s.logger.Info("seeding baseline results", "competition_id", comp.ID, "count", len(results))
	return s.store.UpsertCalculationResults(ctx, results)
}

func participantIDs(participants []models.Participant) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}
	return ids
}
