package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"band-trader/internal/events"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSink) Send(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMonitorForwardsAlertsToEverySink(t *testing.T) {
	bus := events.NewBus()
	failing := &recordingSink{err: errors.New("chat down")}
	ok := &recordingSink{}
	m := &Monitor{Bus: bus, Sinks: []AlertSink{failing, ok}, Log: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	done := m.Start(ctx)
	require.Eventually(t, func() bool { return bus.Subscribers(events.EventAlert) == 1 }, time.Second, time.Millisecond)

	bus.Publish(events.EventAlert, "price feed unavailable")
	require.Eventually(t, func() bool { return len(ok.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, ok.Messages()[0], "price feed unavailable")
	assert.Len(t, failing.Messages(), 1, "a failing sink does not stop the others")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Zero(t, bus.Subscribers(events.EventAlert))
}

func TestMonitorWithoutSinksIsNoop(t *testing.T) {
	m := &Monitor{Bus: events.NewBus(), Log: quietLogger()}
	done := m.Start(context.Background())
	_, open := <-done
	assert.False(t, open)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "x", toString("x"))
	assert.Equal(t, "boom", toString(errors.New("boom")))
	assert.Equal(t, "alert triggered", toString(42))
}

type fakeSender struct {
	params *bot.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.params = p
	return &models.Message{}, f.err
}

func TestTelegramSinkSend(t *testing.T) {
	sender := &fakeSender{}
	s := &TelegramSink{sender: sender, chatID: 12345}

	require.NoError(t, s.Send(context.Background(), "order failed"))
	assert.Equal(t, int64(12345), sender.params.ChatID)
	assert.Equal(t, "order failed", sender.params.Text)

	sender.err = errors.New("forbidden")
	err := s.Send(context.Background(), "x")
	assert.ErrorContains(t, err, "forbidden")
}

func TestNewTelegramSinkValidates(t *testing.T) {
	_, err := NewTelegramSink("", 1)
	assert.Error(t, err)
	_, err = NewTelegramSink("123:abc", 0)
	assert.Error(t, err)
}

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(3)
	assert.Zero(t, h.Stats().Count)

	for _, v := range []float64{5, 1, 3, 10} {
		h.Record(v)
	}
	st := h.Stats()
	assert.Equal(t, 3, st.Count, "window keeps the newest samples")
	assert.Equal(t, 1.0, st.Min)
	assert.Equal(t, 10.0, st.Max)
	assert.InDelta(t, 14.0/3, st.Avg, 1e-9)
}

func TestSystemMetricsSnapshot(t *testing.T) {
	m := NewSystemMetrics()
	m.IncrementCycles()
	m.IncrementCycles()
	m.IncrementOrders()
	m.IncrementAPIErrors()
	NewTimer(m.APILatency).Stop()

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(2), snap.Cycles)
	assert.Equal(t, uint64(1), snap.OrdersPlaced)
	assert.Equal(t, uint64(1), snap.APIErrors)
	assert.Equal(t, 1, snap.APILatency.Count)
	assert.Positive(t, snap.GoroutineCount)
}
