package handlers

import (
	"pool-challenge-system/middleware"
	"pool-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPoolRoutes(app *fiber.App, entryService *services.EntryService, challengeService *services.ChallengeService) {
	// 🔓 Liveness — the only route outside the user context
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔐 Authenticated routes
	secured := app.Group("/s", middleware.UserContextMiddleware())

	// Pool entries (the waiting pool)
	secured.Post("/pool/entries", entryService.SubmitEntry)
	secured.Get("/pool/entries", entryService.GetMyEntries)
	secured.Delete("/pool/entries/:id", entryService.CancelEntry)

	// Challenges
	secured.Get("/pool/challenges", challengeService.GetMyChallenges)
	secured.Get("/pool/challenges/:id", challengeService.GetChallenge)
	secured.Get("/pool/challenges/:id/messages", challengeService.GetChallengeMessages)
	secured.Post("/pool/challenges/:id/judge", challengeService.NudgeJudge)

	// Progress Feed write contract (activity ledger → current_value)
	secured.Post("/pool/challenges/:id/progress", challengeService.RecordProgress)

	// XP aggregate
	secured.Get("/pool/progress", challengeService.GetMyProgress)
}
