package users

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 12

// MinPasswordLength is the shortest accepted admin password.
const MinPasswordLength = 12

var (
	// ErrPasswordTooShort rejects passwords shorter than the minimum length.
	ErrPasswordTooShort = errors.New("users: password must be at least 12 characters")
	// ErrWrongPassword marks a password that does not match the stored hash.
	ErrWrongPassword = errors.New("users: wrong password")
)

// Account is an admin login.
type Account struct {
	ID           string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	Email        string     `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null" json:"-"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
}

// TableName binds Account to its table.
func (Account) TableName() string {
	return "admin_accounts"
}

// Models lists the persistent types of this package for schema migration.
func Models() []any {
	return []any{&Account{}}
}

// SetPassword stores a bcrypt hash of plaintext.
func (a *Account) SetPassword(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordHashCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares plaintext against the stored hash.
func (a *Account) CheckPassword(plaintext string) error {
	if a.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// normalizeEmail lowercases and trims a login address.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
