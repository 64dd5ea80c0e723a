package monitor

import (
	"context"

	"github.com/sirupsen/logrus"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(ctx context.Context, message string) error
}

// LogSink writes alerts to the logger. It is the fallback when no chat is configured.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Send(_ context.Context, message string) error {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithField("component", "alert").Warn(message)
	return nil
}
