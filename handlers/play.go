// handlers/play_routes.go
package handlers

import (
	"play-tracking-system/middleware"
	"play-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPlayRoutes(app *fiber.App, playService *services.PlayService, groupService *services.GroupService) {
	// 🔓 Public routes for browsing play history
	app.Get("/plays", playService.ListPlays)
	app.Get("/plays/:id", playService.GetPlay)
	app.Get("/groups", groupService.ListGroups)
	app.Get("/groups/by-slug/:slug", groupService.GetGroupBySlug)
	app.Get("/users/search", groupService.SearchUsers)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Play lifecycle — every write path runs dedup sync
	secured.Post("/plays", playService.CreatePlay)
	secured.Put("/plays/:id", playService.UpdatePlay)
	secured.Patch("/plays/:id", playService.UpdatePlay)
	secured.Delete("/plays/:id", playService.DeletePlay)

	// Groups
	secured.Post("/groups", groupService.CreateGroup)
	secured.Post("/groups/:id/join", groupService.JoinGroup)

	// 🔒 Admin-only maintenance
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/plays/resync", playService.ResyncPlays)
}
