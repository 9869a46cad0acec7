package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/repository"
)

// MessageChannel is the NOTIFY channel written by the messages insert trigger
const MessageChannel = "message_inserted"

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// Listener holds a dedicated pgx connection that LISTENs for message inserts
type Listener struct {
	dsn    string
	logger logrus.FieldLogger
}

// NewListener creates a listener for the given connection string
func NewListener(dsn string, logger logrus.FieldLogger) *Listener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Listener{dsn: dsn, logger: logger.WithField("component", "pg-listener")}
}

// Listen blocks until ctx is done, reconnecting with backoff when the
// connection drops. Malformed payloads are logged and skipped.
func (l *Listener) Listen(ctx context.Context, handle func(repository.MessageEvent)) error {
	delay := minReconnectDelay
	for {
		err := l.listenOnce(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.WithError(err).WithField("retry_in", delay).Warn("listener connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, handle func(repository.MessageEvent)) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{MessageChannel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	l.logger.WithField("channel", MessageChannel).Info("listening for message inserts")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		event, err := DecodeMessageEvent(notification.Payload)
		if err != nil {
			l.logger.WithError(err).Warn("dropping malformed notification")
			continue
		}
		handle(event)
	}
}

// DecodeMessageEvent parses a notification payload
func DecodeMessageEvent(payload string) (repository.MessageEvent, error) {
	var event repository.MessageEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, fmt.Errorf("invalid message event: %w", err)
	}
	return event, nil
}
