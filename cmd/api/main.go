package main

import (
	"context"
	"fmt"
	"log"

	common_api "go-lead-import/internal/common/api"
	"go-lead-import/internal/config"
	"go-lead-import/internal/database"
	"go-lead-import/internal/features/importer"
	"go-lead-import/internal/logger"
	"go-lead-import/internal/middleware"
	"go-lead-import/internal/notify"
	"go-lead-import/internal/queue"
	"go-lead-import/internal/repository"
	"go-lead-import/internal/storage"
	"go-lead-import/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             100 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,

			repository.NewImportJobRepository,
			repository.NewImportRowRepository,
			repository.NewLeadRepository,
			repository.NewContactSource,

			storage.NewObjectStorage,
			queue.NewRedisClient,
			queue.NewProducer,
			func(p *queue.Producer) queue.Publisher { return p },
			notify.NewNotifier,

			importer.NewDuplicateResolver,
			importer.NewAssigner,
			importer.NewParseWorker,
			importer.NewCommitWorker,
			importer.NewReporter,
			importer.NewProgressStreamer,
			importer.NewImportController,
			importer.NewReaper,

			AsRoute(importer.NewImportApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) {
				utils.SetSecret(cfg.CallbackSecret)
			},
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(r *importer.Reaper) {},
		),
	)

	app.Run()
}
