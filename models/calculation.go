package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Subject types for calculation results
const (
	SubjectParticipant = "participant"
	SubjectTeam        = "team"
)

// CalculationData carries the supporting metrics behind a calculated
// score. Which fields are meaningful depends on the competition mode:
// individual/team results carry the full change metrics, team results add
// TeamID on their member rows, collaborative results carry the shared
// goal alongside the participant's own total.
type CalculationData struct {
	StartingValue         float64  `json:"starting_value"`
	CurrentValue          float64  `json:"current_value"`
	ValueChange           float64  `json:"value_change"`
	ValueChangePercentage float64  `json:"value_change_percentage"`
	BestValue             float64  `json:"best_value"`
	AverageValue          float64  `json:"average_value"`
	TotalValue            float64  `json:"total_value"`
	TeamID                *string  `json:"team_id,omitempty"`
	GoalValue             *float64 `json:"goal_value,omitempty"`
}

// Value implements driver.Valuer so the struct is stored as jsonb.
func (d CalculationData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *CalculationData) Scan(value interface{}) error {
	if value == nil {
		*d = CalculationData{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported calculation_data type %T", value)
	}
}

// CalculationResult is the standings row the engine maintains: one per
// (competition, subject_type, subject_id), overwritten on every
// recalculation. Rank stays nil until ranking runs; collaborative
// results are fixed at rank 1.
type CalculationResult struct {
	ID                   string          `json:"id" gorm:"primaryKey"`
	CompetitionID        string          `json:"competition_id" gorm:"not null;uniqueIndex:idx_result_subject"`
	SubjectType          string          `json:"subject_type" gorm:"not null;uniqueIndex:idx_result_subject"` // "participant" or "team"
	SubjectID            string          `json:"subject_id" gorm:"not null;uniqueIndex:idx_result_subject"`
	CalculatedScore      float64         `json:"calculated_score" gorm:"default:0"`
	CalculationMethod    string          `json:"calculation_method"`
	CalculationData      CalculationData `json:"calculation_data" gorm:"type:jsonb"`
	ActivityEntriesCount int             `json:"activity_entries_count" gorm:"default:0"`
	Rank                 *int            `json:"rank,omitempty"`
	CalculatedAt         time.Time       `json:"calculated_at"`
	CreatedAt            time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// CalculationSummary is what a recalculation run reports back to its
// trigger.
type CalculationSummary struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	UpdatedCount  int      `json:"updated_count"`
	TotalProgress *float64 `json:"total_progress,omitempty"`
	Error         string   `json:"error,omitempty"`
}
