package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupUser is a local snapshot of user data needed for play tracking.
// Owned and managed solely by this service; populated via sync worker from
// the Profile Service's user table.
type GroupUser struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // The profile service's UUID
	Username       string `gorm:"index;not null" json:"username"`
	Email          string `json:"email,omitempty"`

	// BGGUsername links the user to their BoardGameGeek account. When set,
	// the BGG import worker pulls their logged plays on every cycle.
	BGGUsername *string `gorm:"index" json:"bgg_username,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Soft delete (kept for play history attribution)
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
