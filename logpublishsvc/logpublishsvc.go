// Package logpublishsvc publishes log entries to MQTT.
package logpublishsvc

import (
	"context"
	"github.com/lefinal/masc-devices/event"
	"github.com/lefinal/masc-devices/logging"
	"github.com/lefinal/masc-devices/portal"
	"github.com/lefinal/masc-devices/service"
	"go.uber.org/zap"
	"time"
)

// topicLogPublish the topic to publish log entries to.
const topicLogPublish portal.Topic = portal.BaseTopic + "/log/next"

// publishDebounceDelay is the delay to wait for collecting log entries. This
// avoids publishing on every log call.
const publishDebounceDelay = 100 * time.Millisecond

// maxBatchSize limits the number of entries published in one
// event.NextLogEntriesEvent.
const maxBatchSize = 128

// logPublishService publishes log entries from logEntriesIn to the portal.
type logPublishService struct {
	logger *zap.Logger
	portal portal.Portal
	// logEntriesIn is the channel to read log entries to publish from.
	logEntriesIn <-chan logging.LogEntry
	// debounceDelay is the time to collect entries after the first one.
	debounceDelay time.Duration
}

// New creates a new log publish service that can be run. The given
// logging.LogEntry channel is the channel log entries will be read from.
func New(logger *zap.Logger, portal portal.Portal, logEntriesIn <-chan logging.LogEntry) service.Service {
	return &logPublishService{
		logger:        logger,
		portal:        portal,
		logEntriesIn:  logEntriesIn,
		debounceDelay: publishDebounceDelay,
	}
}

// Run the service until the given context.Context is done.
func (s *logPublishService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, more := <-s.logEntriesIn:
			if !more {
				return nil
			}
			s.publishLogEntriesAfterDebounce(ctx, entry)
		}
	}
}

// publishLogEntriesAfterDebounce waits for the debounce delay and publishes
// the given logging.LogEntry together with all entries received meanwhile.
func (s *logPublishService) publishLogEntriesAfterDebounce(ctx context.Context, firstEntry logging.LogEntry) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.debounceDelay):
	}
	batch := []logging.LogEntry{firstEntry}
	for {
		select {
		case entry, more := <-s.logEntriesIn:
			if !more {
				s.publishLogEntries(ctx, batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= maxBatchSize {
				s.publishLogEntries(ctx, batch)
				batch = batch[:0]
			}
		default:
			s.publishLogEntries(ctx, batch)
			return
		}
	}
}

func (s *logPublishService) publishLogEntries(ctx context.Context, entries []logging.LogEntry) {
	if len(entries) == 0 {
		return
	}
	e := event.NextLogEntriesEvent{
		Entries: make([]event.NextLogEntryEvent, 0, len(entries)),
	}
	for _, entry := range entries {
		e.Entries = append(e.Entries, event.NextLogEntryEvent{
			Time:       entry.Time,
			Message:    entry.Message,
			Level:      entry.Level.String(),
			LoggerName: entry.LoggerName,
			Fields:     entry.Fields,
		})
	}
	s.portal.Publish(ctx, topicLogPublish, e)
}
