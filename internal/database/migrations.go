package database

import (
	"gorm.io/gorm"

	"github.com/authgate/authgate/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// The unique index on users.email is the hard backstop for concurrent
// registrations racing past the application-level existence check.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.VerificationCode{},
	)
}
