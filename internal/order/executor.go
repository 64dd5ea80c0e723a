package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"band-trader/internal/events"
	exchange "band-trader/pkg/exchanges/common"
)

// GatewayExecutor sends orders to a venue gateway and emits order events.
type GatewayExecutor struct {
	Gateway   exchange.Gateway
	Bus       *events.Bus
	OrderType exchange.OrderType

	log logrus.FieldLogger
}

func NewGatewayExecutor(gw exchange.Gateway, bus *events.Bus, log logrus.FieldLogger) *GatewayExecutor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GatewayExecutor{
		Gateway:   gw,
		Bus:       bus,
		OrderType: exchange.OrderTypeMarket,
		log:       log.WithField("component", "executor"),
	}
}

func (e *GatewayExecutor) Submit(ctx context.Context, req Request) (Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if e.Gateway == nil {
		return Result{}, executionFailed(req.ID, fmt.Errorf("no gateway configured"))
	}

	e.Bus.Publish(events.EventOrderSubmitted, req)
	start := time.Now()

	res, err := e.Gateway.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol:   req.Symbol,
		Side:     exchange.Side(req.Side),
		Type:     e.OrderType,
		Qty:      req.Qty,
		Price:    req.ReferencePrice,
		ClientID: req.ID,
	})
	if err == nil && !res.Status.Accepted() {
		err = fmt.Errorf("venue returned status %s", res.Status)
	}
	if err != nil {
		execErr := executionFailed(req.ID, err)
		e.log.WithFields(logrus.Fields{"order_id": req.ID, "side": req.Side}).WithError(err).Warn("order rejected")
		e.Bus.Publish(events.EventOrderRejected, execErr)
		return Result{}, execErr
	}

	result := Result{ConfirmationID: res.ExchangeOrderID, Status: string(res.Status)}
	e.log.WithFields(logrus.Fields{
		"order_id":        req.ID,
		"confirmation_id": result.ConfirmationID,
		"status":          result.Status,
		"latency":         time.Since(start),
	}).Info("order accepted")
	e.Bus.Publish(events.EventOrderAccepted, result)
	return result, nil
}
