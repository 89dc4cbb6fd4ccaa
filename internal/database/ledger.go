package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stock-sim-go/internal/models"
)

// ErrStaleAccount is returned when a cash update loses a compare-and-set race.
var ErrStaleAccount = errors.New("account was modified concurrently")

// ErrUserNotFound is returned when no user has the requested id or name.
var ErrUserNotFound = errors.New("user not found")

// Position is a symbol with its summed share amount.
type Position struct {
	Symbol string
	Shares int64
}

// AppendTransaction writes a new ledger row.
func AppendTransaction(db *gorm.DB, t *models.Transaction) error {
	if err := db.Create(t).Error; err != nil {
		return fmt.Errorf("failed to append transaction for %s: %w", t.Symbol, err)
	}
	return nil
}

// ListTransactions returns the owner's ledger in insertion order.
func ListTransactions(db *gorm.DB, owner uint) ([]models.Transaction, error) {
	var ledger []models.Transaction
	if err := db.Where("owner = ?", owner).Order("id asc").Find(&ledger).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions for owner %d: %w", owner, err)
	}
	return ledger, nil
}

// ListTransactionsNewestFirst returns the owner's ledger, most recent first.
func ListTransactionsNewestFirst(db *gorm.DB, owner uint) ([]models.Transaction, error) {
	var ledger []models.Transaction
	if err := db.Where("owner = ?", owner).Order("timestamp desc, id desc").Find(&ledger).Error; err != nil {
		return nil, fmt.Errorf("failed to list history for owner %d: %w", owner, err)
	}
	return ledger, nil
}

// OpenPositions returns the symbols the owner still holds, grouped in SQL.
func OpenPositions(db *gorm.DB, owner uint) ([]Position, error) {
	var positions []Position
	err := db.Model(&models.Transaction{}).
		Select("symbol, SUM(amount) AS shares").
		Where("owner = ?", owner).
		Group("symbol").
		Having("SUM(amount) > 0").
		Order("symbol").
		Scan(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for owner %d: %w", owner, err)
	}
	return positions, nil
}

// GetUser loads a user by id.
func GetUser(db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &user, nil
}

// GetUserByName loads a user by username.
func GetUserByName(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %q: %w", username, err)
	}
	return &user, nil
}

// UpdateCash sets the user's cash if the row still carries the version that was
// read. On success the in-memory user reflects the new state.
func UpdateCash(db *gorm.DB, user *models.User, cash decimal.Decimal) error {
	res := db.Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"cash":    cash,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update cash for user %d: %w", user.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrStaleAccount
	}
	user.Cash = cash
	user.Version++
	return nil
}
