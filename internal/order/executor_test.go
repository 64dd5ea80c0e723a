package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"band-trader/internal/events"
	exchange "band-trader/pkg/exchanges/common"
)

type fakeGateway struct {
	got    []exchange.OrderRequest
	result exchange.OrderResult
	err    error
}

func (g *fakeGateway) SubmitOrder(_ context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	g.got = append(g.got, req)
	return g.result, g.err
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestGatewayExecutorAccepted(t *testing.T) {
	gw := &fakeGateway{result: exchange.OrderResult{ExchangeOrderID: "777", Status: exchange.StatusFilled}}
	bus := events.NewBus()
	accepted, unsub := bus.Subscribe(events.EventOrderAccepted, 1)
	defer unsub()

	exec := NewGatewayExecutor(gw, bus, quiet())
	res, err := exec.Submit(context.Background(), Request{Symbol: "SOLUSDT", Side: SideBuy, ReferencePrice: 96, Qty: 2})
	require.NoError(t, err)
	assert.Equal(t, "777", res.ConfirmationID)

	require.Len(t, gw.got, 1)
	assert.Equal(t, exchange.SideBuy, gw.got[0].Side)
	assert.Equal(t, exchange.OrderTypeMarket, gw.got[0].Type)
	assert.Equal(t, 96.0, gw.got[0].Price)
	assert.NotEmpty(t, gw.got[0].ClientID, "client id is generated when missing")
	assert.Equal(t, res, <-accepted)
}

func TestGatewayExecutorTransportFailure(t *testing.T) {
	cause := errors.New("connection reset")
	exec := NewGatewayExecutor(&fakeGateway{err: cause}, nil, quiet())

	_, err := exec.Submit(context.Background(), Request{ID: "o-1", Side: SideSell, Qty: 1})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "o-1", execErr.OrderID)
	assert.ErrorIs(t, err, cause)
}

func TestGatewayExecutorWeightExhausted(t *testing.T) {
	gw := &fakeGateway{err: fmt.Errorf("%w: 1150/1200 used", exchange.ErrWeightExhausted)}
	_, err := NewGatewayExecutor(gw, nil, quiet()).Submit(context.Background(), Request{ID: "o-2", Side: SideBuy, Qty: 1})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "o-2", execErr.OrderID)
	assert.ErrorIs(t, err, exchange.ErrWeightExhausted)
}

func TestGatewayExecutorRejectedStatus(t *testing.T) {
	gw := &fakeGateway{result: exchange.OrderResult{ExchangeOrderID: "1", Status: exchange.StatusRejected}}
	_, err := NewGatewayExecutor(gw, nil, quiet()).Submit(context.Background(), Request{Side: SideBuy, Qty: 1})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Reason, "REJECTED")
}

func TestGatewayExecutorWithoutGateway(t *testing.T) {
	_, err := NewGatewayExecutor(nil, nil, quiet()).Submit(context.Background(), Request{Side: SideBuy, Qty: 1})
	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)
}

func TestDryRunFillsWithAdverseSlippage(t *testing.T) {
	exec := NewDryRunExecutor(DryRunConfig{SlippageBps: 10}, nil, quiet())

	buy, err := exec.Submit(context.Background(), Request{Side: SideBuy, ReferencePrice: 100, Qty: 1})
	require.NoError(t, err)
	assert.Contains(t, buy.ConfirmationID, "dry-")
	assert.GreaterOrEqual(t, buy.FillPrice, 100.0)
	assert.LessOrEqual(t, buy.FillPrice, 100.1)

	sell, err := exec.Submit(context.Background(), Request{Side: SideSell, ReferencePrice: 100, Qty: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, sell.FillPrice, 100.0)
	assert.NotEqual(t, buy.ConfirmationID, sell.ConfirmationID)

	st := exec.State()
	assert.Equal(t, 2, st.Fills)
	assert.Equal(t, -2.0, st.NetQty)
	assert.Equal(t, sell.FillPrice, st.LastFillPrice)
}

func TestDryRunRejectsInvalidQty(t *testing.T) {
	_, err := NewDryRunExecutor(DryRunConfig{}, nil, quiet()).Submit(context.Background(), Request{Side: SideBuy, ReferencePrice: 1})
	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)
}

func TestDryRunLatencyHonoursContext(t *testing.T) {
	exec := NewDryRunExecutor(DryRunConfig{LatencyMinMs: 5000, LatencyMaxMs: 5000}, nil, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Submit(ctx, Request{Side: SideBuy, ReferencePrice: 1, Qty: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, exec.State().Fills)
}
