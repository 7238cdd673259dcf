package services

import (
	"strconv"

	"play-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StatsService answers statistics queries for groups. Every query here
// filters on is_excluded = false: the dedup engine guarantees that filter
// yields exactly one representative per real-world play, so nothing gets
// double-counted.
type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// LeaderboardEntry is one registered user's standing within a group.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Plays  int64  `json:"plays"`
	Wins   int64  `json:"wins"`
}

// GamePlayCount is how often one game was played within a group.
type GamePlayCount struct {
	GameID uint  `json:"game_id"`
	Plays  int64 `json:"plays"`
}

// GroupLeaderboard counts plays and wins per registered participant.
func (s *StatsService) GroupLeaderboard(groupID uint) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := s.DB.
		Table("play_participants").
		Select("play_participants.user_id AS user_id, COUNT(*) AS plays, SUM(CASE WHEN play_participants.winner THEN 1 ELSE 0 END) AS wins").
		Joins("JOIN plays ON plays.id = play_participants.play_id").
		Where("plays.group_id = ? AND plays.is_excluded = ? AND play_participants.user_id IS NOT NULL", groupID, false).
		Group("play_participants.user_id").
		Order("plays DESC, wins DESC").
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// MostPlayedGames ranks a group's games by deduplicated play count.
func (s *StatsService) MostPlayedGames(groupID uint, limit int) ([]GamePlayCount, error) {
	var counts []GamePlayCount
	err := s.DB.
		Model(&models.Play{}).
		Select("game_id, COUNT(*) AS plays").
		Where("group_id = ? AND is_excluded = ?", groupID, false).
		Group("game_id").
		Order("plays DESC").
		Limit(limit).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// UserPlayCount counts one user's deduplicated plays across all groups.
func (s *StatsService) UserPlayCount(userID string) (int64, error) {
	var count int64
	err := s.DB.
		Table("play_participants").
		Joins("JOIN plays ON plays.id = play_participants.play_id").
		Where("play_participants.user_id = ? AND plays.is_excluded = ?", userID, false).
		Count(&count).Error
	return count, err
}

// GetGroupLeaderboard handles GET /groups/:id/leaderboard.
func (s *StatsService) GetGroupLeaderboard(c *fiber.Ctx) error {
	groupID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid group id"})
	}
	entries, err := s.GroupLeaderboard(uint(groupID))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute leaderboard", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"group_id": groupID, "leaderboard": entries, "count": len(entries)})
}

// GetMostPlayedGames handles GET /groups/:id/games/top.
func (s *StatsService) GetMostPlayedGames(c *fiber.Ctx) error {
	groupID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid group id"})
	}
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}
	counts, err := s.MostPlayedGames(uint(groupID), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to rank games", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"group_id": groupID, "games": counts})
}
