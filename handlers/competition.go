package handlers

import (
	"fitness-competition-service/middleware"
	"fitness-competition-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCompetitionRoutes(app *fiber.App, competitionService *services.CompetitionService) {
	// 🔓 Public browse routes
	app.Get("/competitions", competitionService.GetAllCompetitions)
	app.Get("/competitions/:id", competitionService.GetCompetitionByID)
	app.Get("/competitions/:id/standings", competitionService.GetStandings)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/competitions", competitionService.CreateCompetition)
	secured.Patch("/competitions/:id/status", competitionService.UpdateCompetitionStatus)

	// Participation
	secured.Post("/competitions/:id/join", competitionService.JoinCompetition)
	secured.Post("/competitions/:id/leave", competitionService.LeaveCompetition)

	// Teams (team_v2)
	secured.Post("/competitions/:id/teams", competitionService.CreateTeam)
	secured.Post("/teams/:id/join", competitionService.JoinTeam)

	// Manual recalculation trigger
	secured.Post("/competitions/:id/recalculate", competitionService.Recalculate)
}
