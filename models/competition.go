package models

import (
	"time"
)

// Competition modes
const (
	ModeIndividual    = "individual"
	ModeTeam          = "team"
	ModeTeamV2        = "team_v2"
	ModeCollaborative = "collaborative"
)

// Scoring methods
const (
	ScoringTotalValue       = "total_value"
	ScoringCumulative       = "cumulative"
	ScoringChangePercentage = "change_percentage"
	ScoringBestValue        = "best_value"
	ScoringAverageValue     = "average_value"
)

// Team scoring methods (team mode only)
const (
	TeamScoringSum     = "sum"
	TeamScoringAverage = "average"
	TeamScoringBest    = "best"
)

// Competition statuses
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Activity types with first-class scoring behavior. Other types are
// treated as cumulative (like steps).
const (
	ActivityTypeWeight = "weight"
	ActivityTypeSteps  = "steps"
)

// Competition is a time-boxed fitness challenge scored by the calculation engine.
type Competition struct {
	ID                    string     `json:"id" gorm:"primaryKey"`
	Name                  string     `json:"name" gorm:"not null"`
	Slug                  string     `json:"slug" gorm:"index"`
	Description           string     `json:"description"`
	Mode                  string     `json:"mode" gorm:"not null;default:'individual'"`
	ActivityType          string     `json:"activity_type" gorm:"not null"`
	ScoringMethod         string     `json:"scoring_method" gorm:"not null;default:'total_value'"`
	TeamScoringMethod     string     `json:"team_scoring_method" gorm:"default:'sum'"`
	RankingDirection      string     `json:"ranking_direction" gorm:"default:'desc'"` // "asc" or "desc"
	Status                string     `json:"status" gorm:"default:'draft';index"`
	StartDate             time.Time  `json:"start_date" gorm:"not null"`
	EndDate               *time.Time `json:"end_date,omitempty"`
	ActualStartDate       *time.Time `json:"actual_start_date,omitempty"`
	ActualEndDate         *time.Time `json:"actual_end_date,omitempty"`
	GoalValue             *float64   `json:"goal_value,omitempty"` // collaborative target
	AllowManualActivities bool       `json:"allow_manual_activities" gorm:"default:true"`
	CollaborativeProgress float64    `json:"collaborative_progress" gorm:"default:0"`
	CreatedByID           string     `json:"created_by_id"`
	CreatedAt             time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:CompetitionID"`
	Teams        []Team        `json:"teams,omitempty" gorm:"foreignKey:CompetitionID"`
}

// Window is the effective scoring date range in date-only form. An empty
// End means the competition is open-ended.
type Window struct {
	Start string
	End   string
}

// EffectiveWindow resolves the scoring window: actual dates are
// authoritative when present, nominal dates otherwise.
func (c *Competition) EffectiveWindow() Window {
	start := c.StartDate
	if c.ActualStartDate != nil {
		start = *c.ActualStartDate
	}

	w := Window{Start: DateOnly(start)}

	end := c.EndDate
	if c.ActualEndDate != nil {
		end = c.ActualEndDate
	}
	if end != nil {
		w.End = DateOnly(*end)
	}
	return w
}

// Contains reports whether a date-only value falls inside the window.
// ISO dates compare correctly as strings.
func (w Window) Contains(dateOnly string) bool {
	if dateOnly < w.Start {
		return false
	}
	if w.End != "" && dateOnly > w.End {
		return false
	}
	return true
}

var statusTransitions = map[string][]string{
	StatusDraft:     {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusStarted, StatusCancelled},
	StatusStarted:   {StatusCompleted, StatusCancelled},
}

// CanTransitionStatus reports whether a competition may move between the
// two statuses. Completed and cancelled are terminal.
func CanTransitionStatus(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsCumulativeActivityType reports whether an activity type is scored by
// accumulating values (steps and anything else that is not weight).
func IsCumulativeActivityType(activityType string) bool {
	return activityType != ActivityTypeWeight
}
