// Package logging provides zap cores used by the app.
package logging

import (
	"context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// NoPublishKey is the field key that, when set with true, excludes a log entry
// from publishing. This is used by loggers that publish log entries
// themselves.
const NoPublishKey = "no_publish"

// publishBuffer is the capacity of the LogEntry channel returned by
// NewNoPublishOmitCore.
const publishBuffer = 256

// LogEntry is a log entry that can be published.
type LogEntry struct {
	// Time is the timestamp the entry was created.
	Time time.Time
	// Message is the log message.
	Message string
	// Level is the log level.
	Level zapcore.Level
	// LoggerName is the name of the logger that created the entry.
	LoggerName string
	// Fields holds all fields of the entry including the ones from the logger.
	Fields map[string]interface{}
}

// NoPublish returns the zap.Field to set for excluding an entry from
// publishing.
func NoPublish() zap.Field {
	return zap.Bool(NoPublishKey, true)
}

// publishCore is a zapcore.Core that forwards entries to a channel.
type publishCore struct {
	zapcore.LevelEnabler
	ctx     context.Context
	fields  []zapcore.Field
	publish chan<- LogEntry
}

// NewNoPublishOmitCore creates a zapcore.Core that forwards all entries to the
// returned channel unless they are flagged with NoPublish. If the channel is
// full, entries are dropped instead of blocking the logger. The channel is
// never closed.
func NewNoPublishOmitCore(ctx context.Context, level zapcore.LevelEnabler) (zapcore.Core, <-chan LogEntry) {
	publish := make(chan LogEntry, publishBuffer)
	return &publishCore{
		LevelEnabler: level,
		ctx:          ctx,
		fields:       make([]zapcore.Field, 0),
		publish:      publish,
	}, publish
}

func (c *publishCore) With(fields []zapcore.Field) zapcore.Core {
	combined := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	combined = append(combined, c.fields...)
	combined = append(combined, fields...)
	return &publishCore{
		LevelEnabler: c.LevelEnabler,
		ctx:          c.ctx,
		fields:       combined,
		publish:      c.publish,
	}
}

func (c *publishCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *publishCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}
	if noPublish, ok := enc.Fields[NoPublishKey].(bool); ok && noPublish {
		return nil
	}
	select {
	case <-c.ctx.Done():
	case c.publish <- LogEntry{
		Time:       entry.Time,
		Message:    entry.Message,
		Level:      entry.Level,
		LoggerName: entry.LoggerName,
		Fields:     enc.Fields,
	}:
	default:
		// Full.
	}
	return nil
}

func (c *publishCore) Sync() error {
	return nil
}
