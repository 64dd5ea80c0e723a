package main

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"band-trader/internal/engine"
	"band-trader/internal/events"
	"band-trader/internal/logging"
	"band-trader/internal/market"
	"band-trader/internal/order"
	"band-trader/pkg/config"
)

// dry_run_demo drives the band controller over a seeded random walk with the
// simulated venue. It touches neither the network nor an exchange.
//
// Usage:
//   go run ./scripts/dry_run_demo -cycles 500 -seed 7
//
// It will:
//   1) derive thresholds from the first -history mock prices;
//   2) run -cycles decisions back to back;
//   3) print outcome counts and the simulated position.

func main() {
	cycles := flag.Int("cycles", 200, "decision cycles to run")
	seed := flag.Int64("seed", 1, "random walk seed")
	history := flag.Int("history", 100, "historical samples for the band")
	step := flag.Float64("step", 0.5, "max price move per tick")
	flag.Parse()

	log := logging.New("info", "text")
	log.Info("=== DRY-RUN demo starting ===")

	cfg := config.Defaults()
	ctx := context.Background()
	bus := events.NewBus()

	feed := market.NewMockFeed(100, *step, *history, *seed)
	dry := order.NewDryRunExecutor(order.DryRunConfig{SlippageBps: cfg.DryRunSlippageBps}, bus, log)

	ctrl := engine.NewController(engine.Config{
		Feed:     feed,
		Executor: dry,
		Bus:      bus,
		Logger:   log,
		Symbol:   "DEMO",
		Qty:      cfg.OrderQty,
		K:        cfg.BandK,
	})
	if err := ctrl.Bootstrap(ctx, 1, 0); err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	ctrl.Start()

	counts := make(map[engine.OutcomeKind]int)
	for i := 0; i < *cycles; i++ {
		out := ctrl.Poll(ctx)
		counts[out.Kind]++
	}

	snap := ctrl.Snapshot()
	state := dry.State()
	log.WithFields(logrus.Fields{
		"low":       snap.Thresholds.Low,
		"high":      snap.Thresholds.High,
		"no_signal": counts[engine.OutcomeNoSignal],
		"orders":    counts[engine.OutcomeOrderPlaced],
		"failed":    counts[engine.OutcomeOrderFailed],
		"fills":     state.Fills,
		"net_qty":   state.NetQty,
		"last_fill": state.LastFillPrice,
	}).Info("[SCENARIO DONE] final DRY-RUN state")

	log.Info("=== DRY-RUN demo finished ===")
}
