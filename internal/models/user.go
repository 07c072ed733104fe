package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleUser   = "user"
	RoleSystem = "system"
)

// User represents an application user with a daily generation allowance
type User struct {
	gorm.Model
	Email            string    `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name             string    `gorm:"not null;default:''"`
	Role             string    `gorm:"not null;default:'user'"` // enum: 'user' or 'system'
	Credits          int       `gorm:"not null;default:0;check:credits >= 0"`
	CreditsUsed      int       `gorm:"not null;default:0"`
	LastCreditReset  time.Time `gorm:"not null"`
	NotifyOnComplete bool      `gorm:"not null;default:true"`
	LastLoginAt      *time.Time

	// Associations
	Ideas []Idea `gorm:"constraint:OnDelete:CASCADE;"`
}

// Unlimited reports whether the user bypasses the daily quota entirely.
func (u *User) Unlimited() bool {
	return u.Role == RoleSystem
}
