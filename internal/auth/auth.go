package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"stock-sim-go/internal/config"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/models"
)

var (
	ErrMissingField       = errors.New("username and password are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionExpired     = errors.New("session expired or unknown")
)

// Service registers accounts and manages login sessions.
type Service struct {
	logger      *zap.Logger
	db          *gorm.DB
	initialCash decimal.Decimal
	ttl         time.Duration
	cost        int
	now         func() time.Time
}

// NewService creates a new account service.
func NewService(logger *zap.Logger, cfg *config.Config, db *gorm.DB) *Service {
	ttl := time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		logger:      logger.Named("auth"),
		db:          db,
		initialCash: decimal.NewFromFloat(cfg.Trading.InitialCash),
		ttl:         ttl,
		cost:        bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// Register creates an account funded with the configured starting cash.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || confirmation == "" {
		return nil, ErrMissingField
	}
	if password != confirmation {
		return nil, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, Hash: string(hash), Cash: s.initialCash}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := database.GetUserByName(tx, username)
		switch {
		case err == nil:
			return ErrUsernameTaken
		case !errors.Is(err, database.ErrUserNotFound):
			return err
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered user", zap.Uint("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Login checks the credentials and opens a new session.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingField
	}

	db := s.db.WithContext(ctx)
	user, err := database.GetUserByName(db, username)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	session := &models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := db.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Unscoped().Where("token = ?", token).Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Resolve returns the user id bound to a live session token.
func (s *Service) Resolve(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrSessionExpired
	}
	var session models.Session
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSessionExpired
		}
		return 0, fmt.Errorf("failed to load session: %w", err)
	}
	if !s.now().Before(session.ExpiresAt) {
		return 0, ErrSessionExpired
	}
	return session.UserID, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, owner uint, current, password, confirmation string) error {
	if current == "" || password == "" || confirmation == "" {
		return ErrMissingField
	}
	if password != confirmation {
		return ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := database.GetUser(tx, owner)
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(current)) != nil {
			return ErrInvalidCredentials
		}
		if err := tx.Model(user).Update("hash", string(hash)).Error; err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return nil
	})
}
