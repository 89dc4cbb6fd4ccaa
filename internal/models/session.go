package models

import (
	"time"

	"gorm.io/gorm"
)

// Session binds an opaque token to a logged-in user.
type Session struct {
	gorm.Model
	Token     string    `gorm:"uniqueIndex;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
