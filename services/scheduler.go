// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"fitness-competition-service/models"

	"github.com/go-co-op/gocron/v2"
)

// StartStatusScheduler runs the competition lifecycle: every minute it
// starts competitions whose start time has arrived (seeding baselines for
// weight competitions before their first calculation) and completes
// competitions whose end time has passed (running the final calculation).
func (s *CompetitionService) StartStatusScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx := context.Background()
			s.startDueCompetitions(ctx)
			s.completeDueCompetitions(ctx)
		}),
	)
}

func (s *CompetitionService) startDueCompetitions(ctx context.Context) {
	var comps []models.Competition
	now := time.Now()
	err := s.DB.Where("status = ? AND start_date <= ?", models.StatusScheduled, now).
		Find(&comps).Error
	if err != nil {
		log.Printf("[Scheduler] DB error loading scheduled competitions: %v", err)
		return
	}

	for _, comp := range comps {
		updates := map[string]interface{}{
			"status":            models.StatusStarted,
			"actual_start_date": now,
		}
		if err := s.DB.Model(&models.Competition{}).Where("id = ?", comp.ID).Updates(updates).Error; err != nil {
			log.Printf("[Scheduler] Failed to start competition %s: %v", comp.ID, err)
			continue
		}
		log.Printf("✅ Auto-started competition: %s", comp.Name)

		comp.Status = models.StatusStarted
		comp.ActualStartDate = &now
		if err := s.Calc.SeedBaselineResults(ctx, &comp); err != nil {
			log.Printf("[Scheduler] Failed to seed baselines for %s: %v", comp.ID, err)
		}
		if _, err := s.Calc.CalculateCompetition(ctx, comp.ID); err != nil {
			log.Printf("[Scheduler] Initial calculation failed for %s: %v", comp.ID, err)
		}
	}
}

func (s *CompetitionService) completeDueCompetitions(ctx context.Context) {
	var comps []models.Competition
	now := time.Now()
	err := s.DB.Where("status = ? AND end_date IS NOT NULL AND end_date <= ?", models.StatusStarted, now).
		Find(&comps).Error
	if err != nil {
		log.Printf("[Scheduler] DB error loading started competitions: %v", err)
		return
	}

	for _, comp := range comps {
		updates := map[string]interface{}{
			"status":          models.StatusCompleted,
			"actual_end_date": now,
		}
		if err := s.DB.Model(&models.Competition{}).Where("id = ?", comp.ID).Updates(updates).Error; err != nil {
			log.Printf("[Scheduler] Failed to complete competition %s: %v", comp.ID, err)
			continue
		}
		log.Printf("✅ Auto-completed competition: %s", comp.Name)

		// Final standings run over the closed window.
		if _, err := s.Calc.CalculateCompetition(ctx, comp.ID); err != nil {
			log.Printf("[Scheduler] Final calculation failed for %s: %v", comp.ID, err)
		}
	}
}
