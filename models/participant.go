package models

import (
	"time"
)

// Participant links a user to a competition. The ID is a surrogate key,
// distinct from the user ID; only active participants are scored.
type Participant struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_participant_comp_user"`
	CompetitionID string    `json:"competition_id" gorm:"not null;index;uniqueIndex:idx_participant_comp_user"`
	TeamID        *string   `json:"team_id,omitempty" gorm:"index"` // at most one team per competition
	IsActive      bool      `json:"is_active" gorm:"default:true"`
	JoinedAt      time.Time `json:"joined_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
