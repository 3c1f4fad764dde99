package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidEmail rejects malformed login addresses.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrDuplicateEmail rejects a second account for the same address.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrNotFound marks a missing account.
	ErrNotFound = errors.New("users: account not found")

	emailValidator = validator.New()
)

// ServiceConfig describes the dependencies required for admin account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service manages admin accounts.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create registers a new admin account.
func (s *Service) Create(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)
	if emailValidator.Var(email, "required,email") != nil {
		return Account{}, ErrInvalidEmail
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Account{}, err
	}
	account := Account{ID: id, Email: email, CreatedAt: s.now().UTC()}
	if err := account.SetPassword(password); err != nil {
		return Account{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Account{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateEmail
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateEmail) {
			s.logger.Error("admin account create failed", zap.String("email", email), zap.Error(err))
		}
		return Account{}, err
	}
	s.logger.Info("admin account created", zap.String("account_id", account.ID))
	return account, nil
}

// Authenticate verifies credentials and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if err := account.CheckPassword(password); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	loginAt := s.now().UTC()
	account.LastLoginAt = &loginAt
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", account.ID).
		Update("last_login_at", loginAt).Error; err != nil {
		s.logger.Warn("last login update failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	return account, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrNotFound
	}
	return account, err
}

// Count reports how many admin accounts exist.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Account{}).Count(&count).Error
	return count, err
}
