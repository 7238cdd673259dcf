// handlers/stats_routes.go
package handlers

import (
	"play-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupStatsRoutes wires the statistics read endpoints. These are public
// (gateway auth only) and always exclude duplicate plays — the dedup engine
// guarantees exactly one counted record per real-world session.
func SetupStatsRoutes(app *fiber.App, statsService *services.StatsService) {
	app.Get("/groups/:id/leaderboard", statsService.GetGroupLeaderboard)
	app.Get("/groups/:id/games/top", statsService.GetMostPlayedGames)

	app.Get("/users/:user_id/plays/count", func(c *fiber.Ctx) error {
		count, err := statsService.UserPlayCount(c.Params("user_id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to count plays", "details": err.Error()})
		}
		return c.JSON(fiber.Map{"user_id": c.Params("user_id"), "plays": count})
	})
}
