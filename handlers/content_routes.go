package handlers

import (
	"event-gamification-system/middleware"
	"event-gamification-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupContentRoutes registers the content team's admin surface over
// code definitions. All routes are gateway-secured with user context.
func SetupContentRoutes(app *fiber.App, contentService *services.ContentService) {
	admin := app.Group("/admin", middleware.UserContextMiddleware())

	admin.Post("/codes", contentService.CreateDefinition)
	admin.Get("/codes", contentService.ListDefinitions)
	admin.Get("/codes/:id", contentService.GetDefinition)
	admin.Put("/codes/:id", contentService.UpdateDefinition)
	admin.Patch("/codes/:id/disable", contentService.DisableDefinition)
}
