package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fitness-competition-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CalculationStore is the engine's view of persistence. The engine never
// touches gorm directly so its logic stays testable against an in-memory
// implementation.
type CalculationStore interface {
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
	ListActiveParticipants(ctx context.Context, competitionID string) ([]models.Participant, error)
	// ListActivityEntries returns non-deleted entries for the user and
	// activity type whose date_only falls inside the window, ordered by
	// date ascending.
	ListActivityEntries(ctx context.Context, userID, activityType string, window models.Window) ([]models.ActivityEntry, error)
	// GetBaselineEntry returns the user's earliest-ever non-deleted entry
	// for the activity type, or nil when none exists.
	GetBaselineEntry(ctx context.Context, userID, activityType string) (*models.ActivityEntry, error)
	ListCalculationResults(ctx context.Context, competitionID, subjectType string, subjectIDs []string) ([]models.CalculationResult, error)
	// UpsertCalculationResults writes results keyed on
	// (competition_id, subject_type, subject_id) in one batch.
	UpsertCalculationResults(ctx context.Context, results []models.CalculationResult) error
	UpdateResultRank(ctx context.Context, resultID string, rank int) error
	UpdateCollaborativeProgress(ctx context.Context, competitionID string, progress float64) error

	// team_v2 data path
	ListActiveTeams(ctx context.Context, competitionID string) ([]models.Team, error)
	UpdateTeamTotals(ctx context.Context, teamID string, totalScore float64, memberCount int) error
	UpdateTeamRank(ctx context.Context, teamID string, rank int) error
	UpdateTeamMember(ctx context.Context, member *models.TeamMember) error
}

// ErrCompetitionNotFound distinguishes a missing competition from real
// store failures; the engine reports it in the summary instead of
// propagating.
var ErrCompetitionNotFound = errors.New("competition not found")

type gormCalculationStore struct {
	db *gorm.DB
}

// NewCalculationStore wraps a gorm connection in the engine's store
// contract.
func NewCalculationStore(db *gorm.DB) CalculationStore {
	return &gormCalculationStore{db: db}
}

func (s *gormCalculationStore) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	var comp models.Competition
	if err := s.db.WithContext(ctx).First(&comp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("fetch competition %s: %w", id, err)
	}
	return &comp, nil
}

func (s *gormCalculationStore) ListActiveParticipants(ctx context.Context, competitionID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.WithContext(ctx).
		Where("competition_id = ? AND is_active = ?", competitionID, true).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("fetch participants for competition %s: %w", competitionID, err)
	}
	return participants, nil
}

func (s *gormCalculationStore) ListActivityEntries(ctx context.Context, userID, activityType string, window models.Window) ([]models.ActivityEntry, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND activity_type = ? AND deleted_at IS NULL", userID, activityType).
		Where("date_only >= ?", window.Start)
	if window.End != "" {
		q = q.Where("date_only <= ?", window.End)
	}
	var entries []models.ActivityEntry
	if err := q.Order("date_only ASC, recorded_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("fetch activities for user %s: %w", userID, err)
	}
	return entries, nil
}

func (s *gormCalculationStore) GetBaselineEntry(ctx context.Context, userID, activityType string) (*models.ActivityEntry, error) {
	var entry models.ActivityEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND activity_type = ? AND deleted_at IS NULL", userID, activityType).
		Order("date_only ASC, recorded_at ASC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch baseline for user %s: %w", userID, err)
	}
	return &entry, nil
}

func (s *gormCalculationStore) ListCalculationResults(ctx context.Context, competitionID, subjectType string, subjectIDs []string) ([]models.CalculationResult, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	var results []models.CalculationResult
	err := s.db.WithContext(ctx).
		Where("competition_id = ? AND subject_type = ? AND subject_id IN ?", competitionID, subjectType, subjectIDs).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("fetch prior results for competition %s: %w", competitionID, err)
	}
	return results, nil
}

func (s *gormCalculationStore) UpsertCalculationResults(ctx context.Context, results []models.CalculationResult) error {
	if len(results) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "competition_id"}, {Name: "subject_type"}, {Name: "subject_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"calculated_score",
			"calculation_method",
			"calculation_data",
			"activity_entries_count",
			"rank",
			"calculated_at",
			"updated_at",
		}),
	}).Create(&results).Error
	if err != nil {
		return fmt.Errorf("upsert %d calculation results: %w", len(results), err)
	}
	return nil
}

func (s *gormCalculationStore) UpdateResultRank(ctx context.Context, resultID string, rank int) error {
	err := s.db.WithContext(ctx).Model(&models.CalculationResult{}).
		Where("id = ?", resultID).
		Update("rank", rank).Error
	if err != nil {
		return fmt.Errorf("update rank for result %s: %w", resultID, err)
	}
	return nil
}

func (s *gormCalculationStore) UpdateCollaborativeProgress(ctx context.Context, competitionID string, progress float64) error {
	err := s.db.WithContext(ctx).Model(&models.Competition{}).
		Where("id = ?", competitionID).
		Update("collaborative_progress", progress).Error
	if err != nil {
		return fmt.Errorf("update collaborative progress for competition %s: %w", competitionID, err)
	}
	return nil
}

func (s *gormCalculationStore) ListActiveTeams(ctx context.Context, competitionID string) ([]models.Team, error) {
	var teams []models.Team
	err := s.db.WithContext(ctx).
		Preload("Members", "is_active = ?", true).
		Where("competition_id = ? AND is_active = ?", competitionID, true).
		Order("created_at ASC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("fetch teams for competition %s: %w", competitionID, err)
	}
	return teams, nil
}

func (s *gormCalculationStore) UpdateTeamTotals(ctx context.Context, teamID string, totalScore float64, memberCount int) error {
	err := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", teamID).
		Updates(map[string]interface{}{
			"total_score":  totalScore,
			"member_count": memberCount,
			"updated_at":   time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update totals for team %s: %w", teamID, err)
	}
	return nil
}

func (s *gormCalculationStore) UpdateTeamRank(ctx context.Context, teamID string, rank int) error {
	err := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", teamID).
		Update("rank", rank).Error
	if err != nil {
		return fmt.Errorf("update rank for team %s: %w", teamID, err)
	}
	return nil
}

func (s *gormCalculationStore) UpdateTeamMember(ctx context.Context, member *models.TeamMember) error {
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("id = ?", member.ID).
		Updates(map[string]interface{}{
			"individual_score":   member.IndividualScore,
			"starting_value":     member.StartingValue,
			"current_value":      member.CurrentValue,
			"contribution_value": member.ContributionValue,
			"updated_at":         time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update team member %s: %w", member.ID, err)
	}
	return nil
}
