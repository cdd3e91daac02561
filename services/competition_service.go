package services

import (
	"context"
	"errors"
	"log"
	"time"

	"fitness-competition-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type CompetitionService struct {
	DB   *gorm.DB
	Calc *CalculationService
}

func NewCompetitionService(db *gorm.DB, calc *CalculationService) *CompetitionService {
	return &CompetitionService{DB: db, Calc: calc}
}

func (s *CompetitionService) CreateCompetition(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		Name                  string   `json:"name"`
		Description           string   `json:"description"`
		Mode                  string   `json:"mode"`
		ActivityType          string   `json:"activity_type"`
		ScoringMethod         string   `json:"scoring_method"`
		TeamScoringMethod     string   `json:"team_scoring_method,omitempty"`
		RankingDirection      string   `json:"ranking_direction,omitempty"`
		StartDate             string   `json:"start_date"` // RFC3339
		EndDate               string   `json:"end_date,omitempty"`
		GoalValue             *float64 `json:"goal_value,omitempty"`
		AllowManualActivities *bool    `json:"allow_manual_activities,omitempty"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if req.Name == "" || req.ActivityType == "" || req.StartDate == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name, activity_type, and start_date are required"})
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeIndividual
	}
	switch mode {
	case models.ModeIndividual, models.ModeTeam, models.ModeTeamV2, models.ModeCollaborative:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "invalid mode"})
	}

	scoringMethod := req.ScoringMethod
	if scoringMethod == "" {
		scoringMethod = models.ScoringTotalValue
	}
	switch scoringMethod {
	case models.ScoringTotalValue, models.ScoringCumulative, models.ScoringChangePercentage,
		models.ScoringBestValue, models.ScoringAverageValue:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "invalid scoring_method"})
	}

	rankingDirection := req.RankingDirection
	if rankingDirection == "" {
		rankingDirection = "desc"
	}
	if rankingDirection != "asc" && rankingDirection != "desc" {
		return c.Status(400).JSON(fiber.Map{"error": "ranking_direction must be asc or desc"})
	}

	teamScoringMethod := req.TeamScoringMethod
	if teamScoringMethod == "" {
		teamScoringMethod = models.TeamScoringSum
	}
	switch teamScoringMethod {
	case models.TeamScoringSum, models.TeamScoringAverage, models.TeamScoringBest:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "invalid team_scoring_method"})
	}

	startDate, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid start_date (use RFC3339)"})
	}
	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid end_date (use RFC3339)"})
		}
		if parsed.Before(startDate) {
			return c.Status(400).JSON(fiber.Map{"error": "end_date must be after start_date"})
		}
		endDate = &parsed
	}

	allowManual := true
	if req.AllowManualActivities != nil {
		allowManual = *req.AllowManualActivities
	}

	comp := models.Competition{
		ID:                    uuid.NewString(),
		Name:                  req.Name,
		Slug:                  slug.Make(req.Name),
		Description:           req.Description,
		Mode:                  mode,
		ActivityType:          req.ActivityType,
		ScoringMethod:         scoringMethod,
		TeamScoringMethod:     teamScoringMethod,
		RankingDirection:      rankingDirection,
		Status:                models.StatusDraft,
		StartDate:             startDate,
		EndDate:               endDate,
		GoalValue:             req.GoalValue,
		AllowManualActivities: allowManual,
		CreatedByID:           userID,
	}
	if err := s.DB.Create(&comp).Error; err != nil {
		log.Printf("❌ Failed to create competition: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create competition"})
	}

	return c.Status(201).JSON(comp)
}

func (s *CompetitionService) GetAllCompetitions(c *fiber.Ctx) error {
	q := s.DB.Model(&models.Competition{})
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if activityType := c.Query("activity_type"); activityType != "" {
		q = q.Where("activity_type = ?", activityType)
	}

	var comps []models.Competition
	if err := q.Order("start_date DESC").Find(&comps).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching competitions"})
	}
	return c.JSON(fiber.Map{"competitions": comps, "count": len(comps)})
}

func (s *CompetitionService) GetCompetitionByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var comp models.Competition
	q := s.DB.Preload("Teams", "is_active = ?", true)
	if err := q.First(&comp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competition not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching competition"})
	}
	return c.JSON(comp)
}

// UpdateCompetitionStatus applies a validated lifecycle transition.
// Starting stamps actual_start_date, seeds baselines for weight
// competitions, and runs the first calculation; completing stamps
// actual_end_date and runs the final one.
func (s *CompetitionService) UpdateCompetitionStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	type Req struct {
		Status string `json:"status"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competition not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	if !models.CanTransitionStatus(comp.Status, req.Status) {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid status transition",
			"from":  comp.Status,
			"to":    req.Status,
		})
	}

	now := time.Now()
	updates := map[string]interface{}{"status": req.Status}
	switch req.Status {
	case models.StatusStarted:
		updates["actual_start_date"] = now
	case models.StatusCompleted:
		updates["actual_end_date"] = now
	}

	if err := s.DB.Model(&models.Competition{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}

	if req.Status == models.StatusStarted || req.Status == models.StatusCompleted {
		go s.onCompetitionTransition(context.Background(), id, req.Status)
	}

	var updated models.Competition
	s.DB.First(&updated, "id = ?", id)
	return c.JSON(updated)
}

func (s *CompetitionService) onCompetitionTransition(ctx context.Context, competitionID, status string) {
	if status == models.StatusStarted {
		var comp models.Competition
		if err := s.DB.First(&comp, "id = ?", competitionID).Error; err != nil {
			log.Printf("❌ Failed to reload competition %s after start: %v", competitionID, err)
			return
		}
		if err := s.Calc.SeedBaselineResults(ctx, &comp); err != nil {
			log.Printf("❌ Failed to seed baselines for competition %s: %v", competitionID, err)
		}
	}
	if _, err := s.Calc.CalculateCompetition(ctx, competitionID); err != nil {
		log.Printf("❌ Recalculation after %s transition failed for %s: %v", status, competitionID, err)
	}
}

// JoinCompetition registers the authenticated user as an active
// participant, reactivating a previous registration if one exists.
func (s *CompetitionService) JoinCompetition(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}
	competitionID := c.Params("id")

	type Req struct {
		TeamID string `json:"team_id,omitempty"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competition not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching competition"})
	}
	if comp.Status == models.StatusCompleted || comp.Status == models.StatusCancelled {
		return c.Status(400).JSON(fiber.Map{"error": "competition is no longer open"})
	}
	if comp.Mode == models.ModeTeamV2 {
		return c.Status(400).JSON(fiber.Map{"error": "team_v2 competitions are joined through a team"})
	}
	if comp.Mode == models.ModeTeam && req.TeamID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "team_id is required for team competitions"})
	}

	var teamID *string
	if req.TeamID != "" {
		teamID = &req.TeamID
	}

	var existing models.Participant
	err := s.DB.Where("competition_id = ? AND user_id = ?", competitionID, userID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"is_active": true, "team_id": teamID}
		if err := s.DB.Model(&existing).Updates(updates).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to rejoin competition"})
		}
		existing.IsActive = true
		existing.TeamID = teamID
		return c.JSON(existing)
	case errors.Is(err, gorm.ErrRecordNotFound):
		participant := models.Participant{
			ID:            uuid.NewString(),
			UserID:        userID,
			CompetitionID: competitionID,
			TeamID:        teamID,
			IsActive:      true,
		}
		if err := s.DB.Create(&participant).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to join competition"})
		}
		return c.Status(201).JSON(participant)
	default:
		return c.Status(500).JSON(fiber.Map{"error": "DB error checking participation"})
	}
}

// LeaveCompetition deactivates the participant. Their historical result
// rows stay; they just stop being re-ranked.
func (s *CompetitionService) LeaveCompetition(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}
	competitionID := c.Params("id")

	result := s.DB.Model(&models.Participant{}).
		Where("competition_id = ? AND user_id = ? AND is_active = ?", competitionID, userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to leave competition"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "no active participation found"})
	}
	return c.JSON(fiber.Map{"message": "left competition"})
}

// CreateTeam adds a team to a team_v2 competition.
func (s *CompetitionService) CreateTeam(c *fiber.Ctx) error {
	competitionID := c.Params("id")
	type Req struct {
		Name string `json:"name"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competition not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching competition"})
	}
	if comp.Mode != models.ModeTeamV2 {
		return c.Status(400).JSON(fiber.Map{"error": "teams can only be created for team_v2 competitions"})
	}

	team := models.Team{
		ID:            uuid.NewString(),
		CompetitionID: competitionID,
		Name:          req.Name,
		IsActive:      true,
	}
	if err := s.DB.Create(&team).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create team"})
	}
	return c.Status(201).JSON(team)
}

// JoinTeam adds the authenticated user to a team, reactivating an old
// membership if one exists.
func (s *CompetitionService) JoinTeam(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}
	teamID := c.Params("id")

	var team models.Team
	if err := s.DB.First(&team, "id = ? AND is_active = ?", teamID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "team not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching team"})
	}

	var existing models.TeamMember
	err := s.DB.Where("team_id = ? AND user_id = ?", teamID, userID).First(&existing).Error
	switch {
	case err == nil:
		if err := s.DB.Model(&existing).Update("is_active", true).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to rejoin team"})
		}
		existing.IsActive = true
		return c.JSON(existing)
	case errors.Is(err, gorm.ErrRecordNotFound):
		member := models.TeamMember{
			ID:       uuid.NewString(),
			TeamID:   teamID,
			UserID:   userID,
			IsActive: true,
		}
		if err := s.DB.Create(&member).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to join team"})
		}
		return c.Status(201).JSON(member)
	default:
		return c.Status(500).JSON(fiber.Map{"error": "DB error checking membership"})
	}
}

// GetStandings returns the current board for a competition. team_v2
// reads ranked Team rows; team mode defaults to the team board with
// ?subject=participant for the member view; collaborative returns the
// shared progress alongside per-participant contributions.
func (s *CompetitionService) GetStandings(c *fiber.Ctx) error {
	id := c.Params("id")
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competition not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching competition"})
	}

	if comp.Mode == models.ModeTeamV2 {
		var teams []models.Team
		err := s.DB.Preload("Members", "is_active = ?", true).
			Where("competition_id = ? AND is_active = ?", id, true).
			Order("rank ASC").
			Find(&teams).Error
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "DB error fetching teams"})
		}
		return c.JSON(fiber.Map{"competition_id": id, "mode": comp.Mode, "teams": teams})
	}

	subjectType := models.SubjectParticipant
	if comp.Mode == models.ModeTeam {
		subjectType = models.SubjectTeam
	}
	if requested := c.Query("subject"); requested == models.SubjectParticipant || requested == models.SubjectTeam {
		subjectType = requested
	}

	var results []models.CalculationResult
	err := s.DB.Where("competition_id = ? AND subject_type = ?", id, subjectType).
		Order("rank ASC NULLS LAST").
		Find(&results).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching standings"})
	}

	resp := fiber.Map{
		"competition_id": id,
		"mode":           comp.Mode,
		"subject_type":   subjectType,
		"standings":      results,
	}
	if comp.Mode == models.ModeCollaborative {
		resp["total_progress"] = comp.CollaborativeProgress
		resp["goal_value"] = comp.GoalValue
	}
	return c.JSON(resp)
}

// Recalculate triggers a synchronous recalculation and returns the
// engine's summary. Unlike the activity write path, this endpoint does
// surface failures to the caller.
func (s *CompetitionService) Recalculate(c *fiber.Ctx) error {
	id := c.Params("id")
	summary, err := s.Calc.CalculateCompetition(c.Context(), id)
	if err != nil {
		return c.Status(500).JSON(summary)
	}
	if !summary.Success {
		return c.Status(422).JSON(summary)
	}
	return c.JSON(summary)
}
