package logger

import (
	"context"
	"fmt"
	"time"

	"go-lead-import/internal/config"
	"go-lead-import/internal/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from zap to the background writer
type LogEntry struct {
	Level   zapcore.Level
	Message string
	JobID   string
	Caller  string
}

type logRecord struct {
	AppId     string    `bson:"app_id"`
	Level     string    `bson:"level"`
	Message   string    `bson:"message"`
	JobID     string    `bson:"job_id,omitempty"`
	Caller    string    `bson:"caller,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	db      *mongo.Database
	logChan chan LogEntry
	appId   string
}

func NewDBLogWriter(mongodb *database.MongoDB, cfg *config.Config) *DBLogWriter {
	writer := &DBLogWriter{
		db:      mongodb.DB,
		logChan: make(chan LogEntry, 1000),
		appId:   cfg.AppId,
	}

	go writer.processLogs()

	return writer
}

// AddLog is called by the zap hook; drops the entry rather than block the API
// when the channel is full.
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
	default:
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		record := logRecord{
			AppId:     w.appId,
			Level:     entry.Level.String(),
			Message:   entry.Message,
			JobID:     entry.JobID,
			Caller:    entry.Caller,
			CreatedAt: time.Now().UTC(),
		}

		// Errors are ignored on purpose, logging must never take the app down.
		w.db.Collection("logs").InsertOne(context.Background(), record)
	}
}
