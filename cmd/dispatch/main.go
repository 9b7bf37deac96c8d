package main

import (
	"context"
	"errors"

	"go-lead-import/internal/config"
	"go-lead-import/internal/database"
	"go-lead-import/internal/logger"
	"go-lead-import/internal/queue"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// RunDispatcher drives the queue consumer for the lifetime of the app.
func RunDispatcher(lc fx.Lifecycle, shutdowner fx.Shutdowner, d *queue.Dispatcher, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("dispatcher stopped", zap.Error(err))
					shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			queue.NewRedisClient,
			queue.NewDispatcher,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(RunDispatcher),
	)

	app.Run()
}
