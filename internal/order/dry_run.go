package order

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"band-trader/internal/events"
)

// DryRunConfig shapes the simulated venue.
type DryRunConfig struct {
	SlippageBps  float64 // basis points of adverse slippage applied on fills
	LatencyMinMs int     // simulated venue latency lower bound
	LatencyMaxMs int     // simulated venue latency upper bound
}

// DryRunExecutor fills every order locally without touching a venue.
type DryRunExecutor struct {
	cfg DryRunConfig
	bus *events.Bus
	log logrus.FieldLogger

	mu     sync.Mutex
	rng    *rand.Rand
	fills  int
	netQty float64
	last   float64
}

// DryRunState is a snapshot of the simulated account.
type DryRunState struct {
	Fills         int     `json:"fills"`
	NetQty        float64 `json:"net_qty"`
	LastFillPrice float64 `json:"last_fill_price"`
}

func NewDryRunExecutor(cfg DryRunConfig, bus *events.Bus, log logrus.FieldLogger) *DryRunExecutor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.LatencyMaxMs > 0 && cfg.LatencyMinMs > cfg.LatencyMaxMs {
		cfg.LatencyMinMs, cfg.LatencyMaxMs = cfg.LatencyMaxMs, cfg.LatencyMinMs
	}
	if cfg.LatencyMinMs < 0 {
		cfg.LatencyMinMs = 0
	}
	return &DryRunExecutor{
		cfg: cfg,
		bus: bus,
		log: log.WithField("component", "dry-run"),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *DryRunExecutor) Submit(ctx context.Context, req Request) (Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Qty <= 0 {
		return Result{}, executionFailed(req.ID, fmt.Errorf("invalid quantity %v", req.Qty))
	}
	d.bus.Publish(events.EventOrderSubmitted, req)

	if delay := d.latency(); delay > 0 {
		select {
		case <-ctx.Done():
			execErr := executionFailed(req.ID, ctx.Err())
			d.bus.Publish(events.EventOrderRejected, execErr)
			return Result{}, execErr
		case <-time.After(delay):
		}
	}

	price := d.fillPrice(req)

	d.mu.Lock()
	d.fills++
	d.last = price
	if req.Side == SideBuy {
		d.netQty += req.Qty
	} else {
		d.netQty -= req.Qty
	}
	net := d.netQty
	d.mu.Unlock()

	result := Result{ConfirmationID: "dry-" + uuid.NewString(), Status: "FILLED", FillPrice: price}
	d.log.WithFields(logrus.Fields{
		"order_id":        req.ID,
		"side":            req.Side,
		"qty":             req.Qty,
		"fill_price":      price,
		"net_qty":         net,
		"confirmation_id": result.ConfirmationID,
	}).Info("DRY-RUN fill")
	d.bus.Publish(events.EventOrderAccepted, result)
	return result, nil
}

// State returns the simulated position.
func (d *DryRunExecutor) State() DryRunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DryRunState{Fills: d.fills, NetQty: d.netQty, LastFillPrice: d.last}
}

func (d *DryRunExecutor) fillPrice(req Request) float64 {
	price := req.ReferencePrice
	frac := d.cfg.SlippageBps / 10000.0
	if frac <= 0 {
		return price
	}
	d.mu.Lock()
	noise := d.rng.Float64() * frac
	d.mu.Unlock()
	if req.Side == SideBuy {
		return price * (1 + noise)
	}
	return price * (1 - noise)
}

func (d *DryRunExecutor) latency() time.Duration {
	if d.cfg.LatencyMaxMs <= 0 {
		return 0
	}
	ms := d.cfg.LatencyMinMs
	if span := d.cfg.LatencyMaxMs - d.cfg.LatencyMinMs; span > 0 {
		d.mu.Lock()
		ms += d.rng.Intn(span + 1)
		d.mu.Unlock()
	}
	return time.Duration(ms) * time.Millisecond
}
