package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a single ledger entry. Positive Amount is a buy, negative a sell.
// Rows are append-only.
type Transaction struct {
	gorm.Model
	Owner     uint            `gorm:"index;not null" json:"owner"`
	Symbol    string          `gorm:"index;not null" json:"symbol"`
	Price     decimal.Decimal `gorm:"type:text;not null" json:"price"`
	Amount    int64           `gorm:"not null" json:"amount"`
	Timestamp time.Time       `gorm:"not null" json:"timestamp"`
}

// IsBuy reports whether the entry added shares to the position.
func (t Transaction) IsBuy() bool { return t.Amount > 0 }

// Total is the absolute cash value exchanged by the entry.
func (t Transaction) Total() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Amount)).Abs()
}
