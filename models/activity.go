package models

import (
	"time"
)

// SourceManual marks entries typed in by the user rather than synced from
// a device integration.
const SourceManual = "manual"

const dateOnlyLayout = "2006-01-02"

// ActivityEntry is a single recorded measurement (a weigh-in, a day of
// steps, ...). Soft-deleted entries keep their row but never count toward
// any calculation.
type ActivityEntry struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"not null;index"`
	ActivityType string     `json:"activity_type" gorm:"not null;index"`
	Value        float64    `json:"value" gorm:"not null"`
	RecordedAt   time.Time  `json:"recorded_at" gorm:"not null"`
	DateOnly     string     `json:"date_only" gorm:"type:varchar(10);not null;index"` // YYYY-MM-DD, derived from RecordedAt
	Source       string     `json:"source" gorm:"default:'manual'"`
	Notes        string     `json:"notes,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// DateOnly renders a timestamp as the calendar day used for window
// comparisons.
func DateOnly(t time.Time) string {
	return t.Format(dateOnlyLayout)
}

// IsManual reports whether the entry was logged by hand.
func (e *ActivityEntry) IsManual() bool {
	return e.Source == SourceManual
}

// IsDeleted reports whether the entry has been soft-deleted.
func (e *ActivityEntry) IsDeleted() bool {
	return e.DeletedAt != nil
}
