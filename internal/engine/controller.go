package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"band-trader/internal/events"
	"band-trader/internal/market"
	"band-trader/internal/monitor"
	"band-trader/internal/order"
	"band-trader/internal/volatility"
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("engine: thresholds already initialized")
	// ErrNotInitialized is returned by Run before Initialize succeeded.
	ErrNotInitialized = errors.New("engine: thresholds not initialized")
)

// DefaultInterval is the pause between the end of one cycle and the start of the next.
const DefaultInterval = 60 * time.Second

// Config holds the dependencies and parameters of a Controller.
type Config struct {
	Feed     market.PriceFeed
	Executor order.Executor
	Bus      *events.Bus
	Metrics  *monitor.SystemMetrics
	Logger   logrus.FieldLogger

	Symbol   string
	Qty      float64
	K        float64
	Interval time.Duration
}

// band is the immutable result of Initialize.
type band struct {
	stats      volatility.Stats
	thresholds volatility.Thresholds
}

// Controller drives the decision loop. The run flag is the only state shared
// with the control plane; it is read once per cycle.
type Controller struct {
	feed    market.PriceFeed
	exec    order.Executor
	bus     *events.Bus
	metrics *monitor.SystemMetrics
	log     logrus.FieldLogger

	symbol   string
	qty      float64
	k        float64
	interval time.Duration

	state    atomic.Int32
	band     atomic.Pointer[band]
	initMu   sync.Mutex
	submitMu sync.Mutex // at most one order in flight
	inFlight atomic.Int32
	last     atomic.Pointer[CycleOutcome]
}

// NewController builds a stopped, uninitialized controller.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitor.NewSystemMetrics()
	}
	if cfg.K <= 0 {
		cfg.K = volatility.DefaultK
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Controller{
		feed:     cfg.Feed,
		exec:     cfg.Executor,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.WithField("component", "engine"),
		symbol:   cfg.Symbol,
		qty:      cfg.Qty,
		k:        cfg.K,
		interval: cfg.Interval,
	}
}

// Start sets the controller Running. Starting a running controller is a no-op.
func (c *Controller) Start() {
	if c.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		c.log.Info("trading started")
		c.bus.Publish(events.EventRunState, Running)
	}
}

// Stop sets the controller Stopped. An order already in flight completes;
// no new order starts from the next cycle on.
func (c *Controller) Stop() {
	if c.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		c.log.Info("trading stopped")
		c.bus.Publish(events.EventRunState, Stopped)
	}
}

// Status returns the current run state.
func (c *Controller) Status() RunState {
	return RunState(c.state.Load())
}

// Initialize derives the thresholds from series. It may succeed only once.
func (c *Controller) Initialize(series []float64) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.band.Load() != nil {
		return ErrAlreadyInitialized
	}
	stats, th, err := volatility.Derive(series, c.k)
	if err != nil {
		return fmt.Errorf("initialize thresholds: %w", err)
	}
	c.band.Store(&band{stats: stats, thresholds: th})

	c.log.WithFields(logrus.Fields{
		"samples":    len(series),
		"mean":       stats.Mean,
		"dispersion": stats.Dispersion,
		"low":        th.Low,
		"high":       th.High,
		"k":          c.k,
	}).Info("thresholds initialized; they stay fixed for the life of the process")
	return nil
}

// Bootstrap fetches the historical series and initializes from it, retrying
// feed outages up to attempts times. An empty series is not retried.
func (c *Controller) Bootstrap(ctx context.Context, attempts int, backoff time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		series, err := c.feed.FetchHistoricalSeries(ctx)
		if err == nil {
			return c.Initialize(series)
		}
		lastErr = err
		c.log.WithError(err).WithField("attempt", i).Warn("historical series unavailable")
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("bootstrap: %w", lastErr)
}

// Run polls until ctx is cancelled. The run flag never stops polling; it only
// decides whether a cycle may trade. The wait is measured from the end of one
// cycle, so a slow feed or venue delays the schedule instead of stacking cycles.
func (c *Controller) Run(ctx context.Context) error {
	if c.band.Load() == nil {
		return ErrNotInitialized
	}
	c.log.WithFields(logrus.Fields{"interval": c.interval, "symbol": c.symbol}).Info("poll loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
		c.Poll(ctx)
		timer.Reset(c.interval)
	}
}

// Poll runs one full cycle: read the current price, then RunCycle.
func (c *Controller) Poll(ctx context.Context) CycleOutcome {
	t := monitor.NewTimer(c.metrics.FeedLatency)
	price, err := c.feed.FetchCurrentPrice(ctx)
	t.Stop()
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; not worth an alert
			return CycleOutcome{Kind: OutcomeFeedUnavailable, At: time.Now(), Err: ctx.Err(), Error: ctx.Err().Error()}
		}
		if !errors.Is(err, market.ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %v", market.ErrFeedUnavailable, err)
		}
		return c.record(CycleOutcome{Kind: OutcomeFeedUnavailable, At: time.Now(), Err: err})
	}
	return c.RunCycle(ctx, price)
}

// RunCycle decides on currentPrice and, if a band is crossed while Running,
// submits exactly one order. Executor failures are folded into the outcome.
func (c *Controller) RunCycle(ctx context.Context, currentPrice float64) CycleOutcome {
	out := CycleOutcome{Price: currentPrice, At: time.Now()}

	if c.Status() != Running {
		out.Kind = OutcomeIdle
		return c.record(out)
	}
	b := c.band.Load()
	if b == nil {
		out.Kind = OutcomeIdle
		out.Err = ErrNotInitialized
		return c.record(out)
	}

	var side order.Side
	switch {
	case currentPrice < b.thresholds.Low:
		side = order.SideBuy
	case currentPrice > b.thresholds.High:
		side = order.SideSell
	default:
		out.Kind = OutcomeNoSignal
		return c.record(out)
	}

	req := order.Request{
		ID:             uuid.NewString(),
		Symbol:         c.symbol,
		Side:           side,
		ReferencePrice: currentPrice,
		Qty:            c.qty,
		CreatedAt:      out.At,
	}
	out.Order = &req

	res, err := c.submit(ctx, req)
	if err != nil {
		out.Kind = OutcomeOrderFailed
		out.Err = err
		return c.record(out)
	}
	out.Kind = OutcomeOrderPlaced
	out.Result = &res
	return c.record(out)
}

func (c *Controller) submit(ctx context.Context, req order.Request) (order.Result, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	t := monitor.NewTimer(c.metrics.OrderLatency)
	defer t.Stop()

	res, err := c.exec.Submit(ctx, req)
	if err != nil {
		var execErr *order.ExecutionError
		if !errors.As(err, &execErr) {
			err = &order.ExecutionError{OrderID: req.ID, Reason: err.Error(), Err: err}
		}
		return order.Result{}, err
	}
	return res, nil
}

func (c *Controller) record(out CycleOutcome) CycleOutcome {
	if out.Err != nil {
		out.Error = out.Err.Error()
	}
	c.metrics.IncrementCycles()

	fields := logrus.Fields{"kind": out.Kind}
	if out.Price > 0 {
		fields["price"] = out.Price
	}
	if out.Order != nil {
		fields["side"] = out.Order.Side
		fields["order_id"] = out.Order.ID
	}
	entry := c.log.WithFields(fields)

	switch out.Kind {
	case OutcomeIdle:
		c.metrics.IncrementIdle()
		entry.Debug("cycle idle")
	case OutcomeNoSignal:
		c.metrics.IncrementNoSignal()
		entry.Debug("price inside band")
	case OutcomeOrderPlaced:
		c.metrics.IncrementOrders()
		entry.WithField("confirmation_id", out.Result.ConfirmationID).Info("order confirmed")
	case OutcomeOrderFailed:
		c.metrics.IncrementOrderFailures()
		entry.WithError(out.Err).Error("order failed")
		c.bus.Publish(events.EventAlert, fmt.Sprintf("%s order at %.4f failed: %v", out.Order.Side, out.Price, out.Err))
	case OutcomeFeedUnavailable:
		c.metrics.IncrementFeedFailures()
		entry.WithError(out.Err).Warn("cycle skipped")
		c.bus.Publish(events.EventAlert, fmt.Sprintf("price feed unavailable: %v", out.Err))
	}

	c.last.Store(&out)
	c.bus.Publish(events.EventCycle, out)
	return out
}

// InFlight returns the number of orders currently being submitted (0 or 1).
func (c *Controller) InFlight() int32 {
	return c.inFlight.Load()
}

// Snapshot returns a copy of the controller's observable state.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{
		State:      c.Status(),
		Symbol:     c.symbol,
		Interval:   c.interval.String(),
		K:          c.k,
		InFlight:   c.inFlight.Load(),
		ServerTime: time.Now(),
	}
	if b := c.band.Load(); b != nil {
		stats, th := b.stats, b.thresholds
		snap.Initialized = true
		snap.Stats = &stats
		snap.Thresholds = &th
	}
	if last := c.last.Load(); last != nil {
		cp := *last
		snap.LastOutcome = &cp
	}
	return snap
}
