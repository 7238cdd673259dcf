// models/game.go
package models

import (
	"time"
)

// Game is a board game catalog entry. Rows are created either by admins via
// the API or by the BGG import worker when it first sees a play for an
// unknown game.
type Game struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;index"`
	Slug string `json:"slug" gorm:"uniqueIndex;not null"`

	// 🔗 BoardGameGeek linkage
	BGGGameID *int64 `json:"bgg_game_id,omitempty" gorm:"uniqueIndex"`

	YearPublished *int   `json:"year_published,omitempty"`
	MinPlayers    int    `json:"min_players,omitempty"`
	MaxPlayers    int    `json:"max_players,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
