package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CodeKind distinguishes the two verification flows sharing this table.
type CodeKind string

const (
	CodeEmailVerification CodeKind = "email_verification"
	CodePasswordReset     CodeKind = "password_reset"
)

// VerificationCode is a one-shot, time-bounded code emailed to the user. The
// row id doubles as the secret embedded in the link; consumption deletes the
// row so a code can never succeed twice.
type VerificationCode struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind      CodeKind  `gorm:"not null;index" json:"kind"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (v *VerificationCode) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
