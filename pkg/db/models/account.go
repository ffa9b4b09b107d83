package models

import (
	"time"

	"gorm.io/gorm"
)

// Account represents one connected Google Drive identity
type Account struct {
	ID     string `gorm:"primaryKey;type:text"`
	UserID string `gorm:"type:text;not null;index:idx_account_user"`
	Email  string `gorm:"type:text;not null"`

	// Encrypted OAuth refresh token, opaque to everything but the crypto layer
	RefreshTokenEncrypted string `gorm:"type:text;not null"`

	// Daily upload quota tracking, mutated only through the store's
	// conditional increment and rollover reset
	DailyBytesTransferred int64     `gorm:"not null;default:0"`
	LastQuotaReset        time.Time `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
