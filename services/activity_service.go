package services

import (
	"context"
	"errors"
	"log"
	"time"

	"fitness-competition-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityService handles activity logging and the recalculation
// fan-out that follows every write.
type ActivityService struct {
	DB   *gorm.DB
	Calc *CalculationService
}

func NewActivityService(db *gorm.DB, calc *CalculationService) *ActivityService {
	return &ActivityService{DB: db, Calc: calc}
}

// LogActivity records an activity entry for the authenticated user and
// kicks off recalculation for every matching competition. The response
// never waits on (or reports) recalculation: scoring is best-effort and
// decoupled from the write path.
func (s *ActivityService) LogActivity(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	type Req struct {
		ActivityType string  `json:"activity_type"`
		Value        float64 `json:"value"`
		RecordedAt   string  `json:"recorded_at,omitempty"` // RFC3339, defaults to now
		Source       string  `json:"source,omitempty"`
		Notes        string  `json:"notes,omitempty"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if req.ActivityType == "" {
		return c.Status(400).JSON(fiber.Map{"error": "activity_type is required"})
	}
	if req.Value <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "value must be a positive number"})
	}

	recordedAt := time.Now()
	if req.RecordedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid recorded_at (use RFC3339)"})
		}
		recordedAt = parsed
	}

	source := req.Source
	if source == "" {
		source = models.SourceManual
	}

	entry := models.ActivityEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivityType: req.ActivityType,
		Value:        req.Value,
		RecordedAt:   recordedAt,
		DateOnly:     models.DateOnly(recordedAt),
		Source:       source,
		Notes:        req.Notes,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		log.Printf("❌ Failed to save activity entry for user %s: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to save activity"})
	}

	go s.TriggerRecalculationsForEntry(context.Background(), entry)

	return c.Status(201).JSON(entry)
}

// DeleteActivity soft-deletes an entry owned by the authenticated user,
// then re-triggers recalculation so standings stop counting it.
func (s *ActivityService) DeleteActivity(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}
	id := c.Params("id")

	var entry models.ActivityEntry
	if err := s.DB.First(&entry, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "activity entry not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching activity"})
	}
	if entry.DeletedAt != nil {
		return c.Status(409).JSON(fiber.Map{"error": "activity entry already deleted"})
	}

	now := time.Now()
	if err := s.DB.Model(&entry).Update("deleted_at", now).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete activity"})
	}
	entry.DeletedAt = &now

	go s.TriggerRecalculationsForEntry(context.Background(), entry)

	return c.JSON(fiber.Map{"message": "activity deleted", "id": entry.ID})
}

// GetMyActivities lists the authenticated user's entries, newest first,
// excluding deleted ones. Supports ?activity_type= filtering.
func (s *ActivityService) GetMyActivities(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	q := s.DB.Where("user_id = ? AND deleted_at IS NULL", userID)
	if activityType := c.Query("activity_type"); activityType != "" {
		q = q.Where("activity_type = ?", activityType)
	}

	var entries []models.ActivityEntry
	if err := q.Order("recorded_at DESC").Limit(200).Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching activities"})
	}
	return c.JSON(fiber.Map{"activities": entries, "count": len(entries)})
}

// TriggerRecalculationsForEntry finds every started competition the
// entry can affect and recalculates each. Errors are logged and
// swallowed; the original write already succeeded.
func (s *ActivityService) TriggerRecalculationsForEntry(ctx context.Context, entry models.ActivityEntry) {
	comps, err := s.findCompetitionsForEntry(entry)
	if err != nil {
		log.Printf("❌ Failed to find competitions for activity %s: %v", entry.ID, err)
		return
	}
	for _, comp := range comps {
		summary, err := s.Calc.CalculateCompetition(ctx, comp.ID)
		if err != nil {
			log.Printf("❌ Recalculation of competition %s failed: %v", comp.ID, err)
			continue
		}
		if !summary.Success {
			log.Printf("⚠️ Recalculation of competition %s: %s", comp.ID, summary.Message)
		}
	}
}

// findCompetitionsForEntry matches the entry's owner against started
// competitions of the same activity type, through both the participant
// table and (for team_v2) team membership, then narrows to competitions
// whose window contains the entry's day.
func (s *ActivityService) findCompetitionsForEntry(entry models.ActivityEntry) ([]models.Competition, error) {
	var viaParticipants []models.Competition
	err := s.DB.
		Joins("JOIN participants ON participants.competition_id = competitions.id").
		Where("participants.user_id = ? AND participants.is_active = ?", entry.UserID, true).
		Where("competitions.status = ? AND competitions.activity_type = ?", models.StatusStarted, entry.ActivityType).
		Find(&viaParticipants).Error
	if err != nil {
		return nil, err
	}

	var viaTeams []models.Competition
	err = s.DB.
		Joins("JOIN teams ON teams.competition_id = competitions.id").
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ? AND team_members.is_active = ? AND teams.is_active = ?", entry.UserID, true, true).
		Where("competitions.status = ? AND competitions.activity_type = ?", models.StatusStarted, entry.ActivityType).
		Distinct("competitions.*").
		Find(&viaTeams).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	matched := make([]models.Competition, 0, len(viaParticipants)+len(viaTeams))
	for _, comp := range append(viaParticipants, viaTeams...) {
		if seen[comp.ID] {
			continue
		}
		seen[comp.ID] = true
		if competitionMatchesEntry(&comp, &entry) {
			matched = append(matched, comp)
		}
	}
	return matched, nil
}

// competitionMatchesEntry applies the filters the SQL join cannot: the
// entry's day must fall inside the effective window, and manual entries
// only count where the competition allows them (team_v2 and
// collaborative always do).
func competitionMatchesEntry(comp *models.Competition, entry *models.ActivityEntry) bool {
	if entry.IsManual() && !comp.AllowManualActivities &&
		comp.Mode != models.ModeTeamV2 && comp.Mode != models.ModeCollaborative {
		return false
	}
	return comp.EffectiveWindow().Contains(entry.DateOnly)
}
