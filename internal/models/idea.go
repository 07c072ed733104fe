package models

import (
	"strings"

	"gorm.io/gorm"
)

// Idea status constants
const (
	IdeaStatusDraft     = "DRAFT"
	IdeaStatusAnalyzing = "ANALYZING"
	IdeaStatusCompleted = "COMPLETED"
	IdeaStatusFailed    = "FAILED"
)

// Attachment type constants
const (
	AttachmentImage     = "IMAGE"
	AttachmentPDF       = "PDF"
	AttachmentVideoLink = "VIDEO_LINK"
	AttachmentSlideLink = "SLIDE_LINK"
	AttachmentOther     = "OTHER"
)

// Idea is a user-submitted concept with a generation status lifecycle
type Idea struct {
	gorm.Model
	UserID       uint         `gorm:"not null;index"`
	User         User         `gorm:"constraint:OnDelete:CASCADE;"`
	Title        string       `gorm:"not null"`
	OneLiner     string       `gorm:"column:one_liner;not null;default:''"`
	Description  string       `gorm:"type:text"`
	Status       string       `gorm:"not null;default:'DRAFT';index"`
	ErrorMessage string       `gorm:"column:error_message;type:text"`
	Attachments  []Attachment `gorm:"constraint:OnDelete:CASCADE;"`
	Analyses     []Analysis   `gorm:"constraint:OnDelete:CASCADE;"`
}

// Attachment is a file or link attached to an Idea. Rows are never updated.
type Attachment struct {
	gorm.Model
	IdeaID      uint   `gorm:"not null;index"`
	Position    int    `gorm:"not null;default:0"`
	Type        string `gorm:"not null;default:'OTHER'"`
	URL         string `gorm:"type:text"`
	FileName    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string `gorm:"column:object_key"`
}

// AttachmentTypeFor guesses the attachment type from a content type or link.
func AttachmentTypeFor(contentType, url string) string {
	switch {
	case contentType == "application/pdf":
		return AttachmentPDF
	case strings.HasPrefix(contentType, "image/"):
		return AttachmentImage
	case containsAny(url, "youtube.com", "youtu.be", "vimeo.com", "loom.com"):
		return AttachmentVideoLink
	case containsAny(url, "docs.google.com/presentation", "pitch.com", "slideshare.net", "canva.com"):
		return AttachmentSlideLink
	default:
		return AttachmentOther
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
