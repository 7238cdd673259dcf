package models

import (
	"time"
)

// Play records a single board-game session logged by a group member.
//
// The deduplication fields (IsExcluded, LeadingPlayID, ExcludedAt,
// ExclusionReason) are owned exclusively by services.DedupService — handlers
// must never write them. A play is either leading (IsExcluded=false,
// LeadingPlayID=nil) or excluded (IsExcluded=true, LeadingPlayID points at a
// leading play). Plays without a GroupID are never deduplicated.
type Play struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	GameID    uint   `json:"game_id" gorm:"index;not null"`
	GroupID   *uint  `json:"group_id,omitempty" gorm:"index"` // nil = personal play, skipped by dedup
	CreatorID string `json:"creator_id" gorm:"index;not null"` // profile service UUID of whoever logged it

	PlayedOn  time.Time `json:"played_on" gorm:"type:date;index;not null"` // calendar date, no time-of-day
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Optional detail
	BGGPlayID     *int64 `json:"bgg_play_id,omitempty" gorm:"index"` // BoardGameGeek play id, set by the import worker
	Comment       string `json:"comment,omitempty"`
	LengthMinutes *int   `json:"length_minutes,omitempty"`

	// 🔁 Deduplication state — written only by the dedup engine
	IsExcluded      bool       `json:"is_excluded" gorm:"default:false;index"`
	LeadingPlayID   *uint      `json:"leading_play_id,omitempty" gorm:"index"`
	ExcludedAt      *time.Time `json:"excluded_at,omitempty"`
	ExclusionReason *string    `json:"exclusion_reason,omitempty"`

	Participants []PlayParticipant `json:"participants" gorm:"foreignKey:PlayID;constraint:OnDelete:CASCADE"`
}

// PlayParticipant attaches a person to a play. Exactly one of UserID,
// BGGUsername, GuestName is populated; the other two stay nil.
type PlayParticipant struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	PlayID uint   `json:"play_id" gorm:"index;not null"`

	UserID      *string `json:"user_id,omitempty" gorm:"index"` // registered platform user (profile UUID)
	BGGUsername *string `json:"bgg_username,omitempty"`         // BoardGameGeek account, not linked locally
	GuestName   *string `json:"guest_name,omitempty"`           // free-text guest

	Score  *float64 `json:"score,omitempty"`
	Winner bool     `json:"winner" gorm:"default:false"`
}
