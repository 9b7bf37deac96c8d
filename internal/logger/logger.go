package logger

import (
	"go-lead-import/internal/config"
	"go-lead-import/internal/database"

	"go.uber.org/zap"
)

// NewLogger builds the zap logger with the Mongo tee core attached, so every
// log line goes to the console and to the "logs" collection.
func NewLogger(cfg *config.Config, db *database.MongoDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(db, cfg)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)

	return zap.New(finalCore, zap.AddCaller()), nil
}
