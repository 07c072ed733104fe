package models

import (
	"gorm.io/gorm"
)

// DailyIdeaDateLayout is the calendar-date format used as the daily idea key.
const DailyIdeaDateLayout = "2006-01-02"

// DailyIdea links a calendar date to the idea and analysis generated for it
type DailyIdea struct {
	gorm.Model
	Date        string   `gorm:"uniqueIndex;not null"` // YYYY-MM-DD in the app timezone
	IdeaID      uint     `gorm:"not null"`
	Idea        Idea     `gorm:"constraint:OnDelete:CASCADE;"`
	AnalysisID  uint     `gorm:"not null"`
	Analysis    Analysis `gorm:"constraint:OnDelete:CASCADE;"`
	TemplateKey string   `gorm:"column:template_key"`
}
