package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a registered account holder. Cash must never go negative.
// Version is bumped on every cash update and used as a compare-and-set guard.
// Money columns are text so sqlite keeps the exact decimal.
type User struct {
	gorm.Model
	Username string          `gorm:"uniqueIndex;not null" json:"username"`
	Hash     string          `gorm:"not null" json:"-"`
	Cash     decimal.Decimal `gorm:"type:text;not null" json:"cash"`
	Version  int64           `gorm:"not null;default:0" json:"-"`
}
