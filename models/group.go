package models

import (
	"time"

	"gorm.io/gorm"
)

// Group is a circle of players who log plays together. Deduplication only
// ever runs within one group; the same session entered in two different
// groups stays two distinct records.
type Group struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Description string `json:"description,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Members []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID"`
}

// GroupMember ties a platform user to a group.
type GroupMember struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	GroupID uint   `json:"group_id" gorm:"index;not null;uniqueIndex:idx_group_user"`
	UserID  string `json:"user_id" gorm:"index;not null;uniqueIndex:idx_group_user"` // profile service UUID

	Role     string    `json:"role" gorm:"type:varchar(16);default:'member'"` // member | admin
	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime"`
}
