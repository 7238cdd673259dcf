// handlers/game_routes.go
package handlers

import (
	"play-tracking-system/middleware"
	"play-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService) {
	// 🔓 Public routes — *no user context*, but **still require Gateway auth**
	app.Get("/games", gameService.GetAllGames)
	app.Get("/games/:slug", gameService.GetGameBySlug)

	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/games", gameService.CreateGame)
}
