package models

import (
	"time"
)

// Team is the team_v2 scoring unit. TotalScore, MemberCount and Rank are
// rewritten by the engine on every recalculation.
type Team struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	CompetitionID string    `json:"competition_id" gorm:"not null;index"`
	Name          string    `json:"name" gorm:"not null"`
	IsActive      bool      `json:"is_active" gorm:"default:true"`
	TotalScore    float64   `json:"total_score" gorm:"default:0"`
	MemberCount   int       `json:"member_count" gorm:"default:0"`
	Rank          int       `json:"rank" gorm:"default:0"` // 0 = not ranked yet
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Members []TeamMember `json:"members,omitempty" gorm:"foreignKey:TeamID"`
}

// TeamMember holds a member's slice of the team score, written as a side
// effect of team_v2 recalculation.
type TeamMember struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	TeamID            string    `json:"team_id" gorm:"not null;index;uniqueIndex:idx_team_member"`
	UserID            string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_team_member"`
	IsActive          bool      `json:"is_active" gorm:"default:true"`
	IndividualScore   float64   `json:"individual_score" gorm:"default:0"`
	StartingValue     float64   `json:"starting_value" gorm:"default:0"`
	CurrentValue      float64   `json:"current_value" gorm:"default:0"`
	ContributionValue float64   `json:"contribution_value" gorm:"default:0"`
	JoinedAt          time.Time `json:"joined_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
