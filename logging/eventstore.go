package logging

import (
	"context"

	"github.com/sirupsen/logrus"
	es "github.com/terraskye/formations"
)

type eventStoreLogger struct {
	logger *logrus.Entry
	next   es.EventStore
}

// WithEventStoreLogging wraps an EventStore with logging functionality.
// Successful operations are logged at debug level, failures at error level.
// Errors are returned unchanged.
func WithEventStoreLogging(logger *logrus.Entry, next es.EventStore) es.EventStore {
	return &eventStoreLogger{logger: logger, next: next}
}

func (l *eventStoreLogger) Append(ctx context.Context, event es.Event) error {
	log := l.logger.WithContext(ctx)
	if event != nil {
		log = log.WithFields(logrus.Fields{
			"aggregateId": event.AggregateID(),
			"kind":        event.Kind(),
			"eventId":     event.EventID(),
		})
	}

	err := l.next.Append(ctx, event)
	if err != nil {
		log.WithError(err).Error("Append failed")
		return err
	}
	log.Debug("Appended event")
	return nil
}

func (l *eventStoreLogger) AppendStream(ctx context.Context, aggregateID string, events []es.Event, expected es.StreamState) (es.AppendResult, error) {
	log := l.logger.WithContext(ctx).WithFields(logrus.Fields{
		"aggregateId": aggregateID,
		"events":      len(events),
		"expected":    expected,
	})

	result, err := l.next.AppendStream(ctx, aggregateID, events, expected)
	if err != nil {
		log.WithError(err).Error("AppendStream failed")
		return result, err
	}
	log.WithField("version", result.NextExpectedVersion).Debug("Appended events")
	return result, nil
}

func (l *eventStoreLogger) ListAll(ctx context.Context) ([]es.Event, error) {
	events, err := l.next.ListAll(ctx)
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Error("ListAll failed")
		return nil, err
	}
	l.logger.WithContext(ctx).WithField("events", len(events)).Debug("Listed events")
	return events, nil
}

func (l *eventStoreLogger) Close() error {
	if err := l.next.Close(); err != nil {
		l.logger.WithError(err).Error("Close failed")
		return err
	}
	return nil
}
