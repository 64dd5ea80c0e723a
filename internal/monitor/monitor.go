package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"band-trader/internal/events"
)

// Monitor watches the alert topic and forwards every message to its sinks.
type Monitor struct {
	Bus   *events.Bus
	Sinks []AlertSink
	Log   logrus.FieldLogger

	// SendTimeout bounds a single delivery; zero means 10s.
	SendTimeout time.Duration
}

// Start subscribes and returns immediately. The returned channel is closed
// once the forwarding goroutine exits.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if m.Log == nil {
		m.Log = logrus.StandardLogger()
	}
	if m.Bus == nil || len(m.Sinks) == 0 {
		m.Log.Warn("monitor not fully configured; skipping")
		close(done)
		return done
	}
	stream, unsub := m.Bus.Subscribe(events.EventAlert, 50)
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if err := m.dispatch(ctx, formatAlert(msg)); err != nil {
					m.Log.WithError(err).Error("alert delivery failed")
				}
			}
		}
	}()
	return done
}

func (m *Monitor) dispatch(ctx context.Context, text string) error {
	timeout := m.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs error
	for _, s := range m.Sinks {
		errs = multierr.Append(errs, s.Send(ctx, text))
	}
	return errs
}

func formatAlert(msg any) string {
	return "[" + time.Now().UTC().Format(time.RFC3339) + "] " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return "alert triggered"
	}
}
