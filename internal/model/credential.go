package model

import "time"

// Credential holds the tokens a user granted for one source.
type Credential struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       uint   `gorm:"not null;uniqueIndex:idx_user_source_credential"`
	Source       Source `gorm:"type:varchar(32);not null;uniqueIndex:idx_user_source_credential"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the credential has a known expiry before now.
// Credentials without an expiry (e.g. Canvas API tokens) never expire.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
