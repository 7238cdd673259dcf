// services/users.go
package services

import (
	"strconv"
	"strings"

	"play-tracking-system/models"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers searches the local GroupUser snapshot table. Used by clients to
// pick registered participants when logging a play.
func (s *GroupService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.GroupUser
	db := s.DB.Model(&models.GroupUser{}).Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where(
			"LOWER(username) LIKE ? OR LOWER(bgg_username) LIKE ?",
			searchTerm, searchTerm,
		)
	}

	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	// Minimal response shape: the external UUID is what participant rows
	// reference, so it leads.
	type UserSummary struct {
		ExternalUserID string  `json:"external_user_id"`
		Username       string  `json:"username"`
		BGGUsername    *string `json:"bgg_username,omitempty"`
	}

	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{
			ExternalUserID: u.ExternalUserID,
			Username:       u.Username,
			BGGUsername:    u.BGGUsername,
		}
	}

	return c.JSON(res)
}
