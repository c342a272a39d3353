package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/authgate/authgate/internal/models"
	"github.com/authgate/authgate/pkg/crypto"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateEmail surfaces the unique-index violation on users.email.
	ErrDuplicateEmail = errors.New("store: duplicate email")
)

// Store wraps the persistence queries used by the auth services. Password
// hashing happens here and only here, so a plaintext password never crosses
// this boundary into a row.
type Store struct {
	db *gorm.DB
}

// New constructs a Store backed by the provided database handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &Store{db: db}, nil
}

// CreateUser inserts a user with a freshly hashed password.
func (s *Store) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("store: email is required")
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("store: hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: hashed,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	return user, nil
}

// UserByEmail looks up a user by exact email match.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user by email: %w", err)
	}
	return &user, nil
}

// UserByID looks up a user by primary key.
func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	return &user, nil
}

// UserEmailExists reports whether a user with the email is already registered.
func (s *Store) UserEmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("store: count users: %w", err)
	}
	return count > 0, nil
}

// MarkUserVerified flips the verified flag for the user.
func (s *Store) MarkUserVerified(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("verified", true)
	if result.Error != nil {
		return fmt.Errorf("store: mark verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPassword replaces the stored hash with one derived from the new password.
func (s *Store) UpdateUserPassword(ctx context.Context, userID, password string) error {
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("store: hash password: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", hashed)
	if result.Error != nil {
		return fmt.Errorf("store: update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession inserts a session row for the user.
func (s *Store) CreateSession(ctx context.Context, userID, userAgent string, expiresAt time.Time) (*models.Session, error) {
	session := &models.Session{
		UserID:    userID,
		UserAgent: strings.TrimSpace(userAgent),
		ExpiresAt: expiresAt,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return session, nil
}

// SessionByID looks up a session regardless of its expiry state.
func (s *Store) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Take(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find session: %w", err)
	}
	return &session, nil
}

// ExtendSession moves the session expiry forward. The session identity is
// unchanged; only its lifetime is replaced.
func (s *Store) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return fmt.Errorf("store: extend session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session by id, returning the number of rows removed.
func (s *Store) DeleteSession(ctx context.Context, id string) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", id)
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete session: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteSessionOwned removes a session only when it belongs to the user.
func (s *Store) DeleteSessionOwned(ctx context.Context, userID, id string) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ? AND user_id = ?", id, userID)
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete owned session: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteUserSessions removes every session belonging to the user.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.Session{}, "user_id = ?", userID)
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete user sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOtherUserSessions removes every session of the user except keepID.
func (s *Store) DeleteOtherUserSessions(ctx context.Context, userID, keepID string) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.Session{}, "user_id = ? AND id <> ?", userID, keepID)
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete other user sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ActiveSessions returns unexpired sessions for the user, newest first.
func (s *Store) ActiveSessions(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return sessions, nil
}

// CreateCode inserts a verification code of the given kind. The creation
// time is taken from the caller so the rate-limit window and the expiry are
// measured against the same clock.
func (s *Store) CreateCode(ctx context.Context, userID string, kind models.CodeKind, createdAt, expiresAt time.Time) (*models.VerificationCode, error) {
	code := &models.VerificationCode{
		UserID:    userID,
		Kind:      kind,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}

	if err := s.db.WithContext(ctx).Create(code).Error; err != nil {
		return nil, fmt.Errorf("store: create code: %w", err)
	}
	return code, nil
}

// ValidCode returns the code only when it matches the kind and is unexpired.
func (s *Store) ValidCode(ctx context.Context, id string, kind models.CodeKind, now time.Time) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := s.db.WithContext(ctx).
		Take(&code, "id = ? AND kind = ? AND expires_at > ?", id, kind, now).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find code: %w", err)
	}
	return &code, nil
}

// DeleteCode consumes a code. Codes are one-shot; the caller deletes on use.
func (s *Store) DeleteCode(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.VerificationCode{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("store: delete code: %w", err)
	}
	return nil
}

// CountRecentCodes counts codes of a kind created for the user since the cutoff.
func (s *Store) CountRecentCodes(ctx context.Context, userID string, kind models.CodeKind, since time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.VerificationCode{}).
		Where("user_id = ? AND kind = ? AND created_at > ?", userID, kind, since).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count codes: %w", err)
	}
	return count, nil
}

// PurgeExpiredCodes removes codes whose expiry has passed.
func (s *Store) PurgeExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&models.VerificationCode{}, "expires_at <= ?", now)
	if result.Error != nil {
		return 0, fmt.Errorf("store: purge codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}
