package importer

import (
	"go-lead-import/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ImportApi struct {
	Controller *ImportController
	Streamer   *ProgressStreamer
}

func NewImportApi(controller *ImportController, streamer *ProgressStreamer) *ImportApi {
	return &ImportApi{
		Controller: controller,
		Streamer:   streamer,
	}
}

func (api *ImportApi) Setup(app *fiber.App) {
	group := app.Group("/api/import")

	group.Post("/jobs", api.Controller.CreateJob)
	group.Get("/jobs", api.Controller.ListJobs)
	group.Get("/jobs/:id", api.Controller.GetJob)
	group.Put("/jobs/:id/mapping", api.Controller.ConfirmMapping)
	group.Post("/jobs/:id/start", api.Controller.Start)
	group.Get("/jobs/:id/resume", api.Controller.ResumeStatus)
	group.Post("/jobs/:id/resume", api.Controller.Resume)
	group.Post("/jobs/:id/cancel", api.Controller.Cancel)
	group.Get("/jobs/:id/report", api.Controller.Report)

	group.Get("/jobs/:id/progress", websocket.New(api.Streamer.Stream))

	internal := app.Group("/internal/import", middleware.CallbackAuthMiddleware())
	internal.Post("/parse", api.Controller.ParseCallback)
	internal.Post("/commit", api.Controller.CommitCallback)
}
