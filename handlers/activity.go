package handlers

import (
	"fitness-competition-service/middleware"
	"fitness-competition-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupActivityRoutes(app *fiber.App, activityService *services.ActivityService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// The write that drives scoring: logging an activity kicks off
	// recalculation of every competition it can affect.
	secured.Post("/activities", activityService.LogActivity)
	secured.Delete("/activities/:id", activityService.DeleteActivity)
	secured.Get("/users/me/activities", activityService.GetMyActivities)
}
