package logger

import (
	"go.uber.org/zap/zapcore"
)

// DBCore is a custom zap Core that tees entries to the Mongo writer while
// still delegating to the wrapped console core.
type DBCore struct {
	zapcore.Core
	writer *DBLogWriter
}

func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter) zapcore.Core {
	return &DBCore{
		Core:   baseCore,
		writer: writer,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	var jobID string

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
		if f.Key == "jobId" {
			jobID = f.String
		}
	}

	c.writer.AddLog(LogEntry{
		Level:   entry.Level,
		Message: entry.Message,
		JobID:   jobID,
		Caller:  entry.Caller.Function,
	})

	return c.Core.Write(entry, fields)
}

func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
