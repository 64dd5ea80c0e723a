package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"band-trader/internal/api"
	"band-trader/internal/engine"
	"band-trader/internal/events"
	"band-trader/internal/logging"
	"band-trader/internal/market"
	"band-trader/internal/monitor"
	"band-trader/internal/order"
	"band-trader/pkg/config"
	exspot "band-trader/pkg/exchanges/binance/spot"
	exchange "band-trader/pkg/exchanges/common"
	marketbinance "band-trader/pkg/market/binance"
)

// buildVersion is overridden with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("trader exited with error")
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	feed := buildFeed(ctx, cfg, log)
	exec, venue := buildExecutor(cfg, bus, log)

	ctrl := engine.NewController(engine.Config{
		Feed:     feed,
		Executor: exec,
		Bus:      bus,
		Metrics:  metrics,
		Logger:   log,
		Symbol:   cfg.Symbol,
		Qty:      cfg.OrderQty,
		K:        cfg.BandK,
		Interval: cfg.PollInterval,
	})

	// Thresholds must exist before anything can trade.
	if err := ctrl.Bootstrap(ctx, cfg.BootstrapAttempts, 5*time.Second); err != nil {
		return err
	}
	if cfg.AutoStart {
		ctrl.Start()
	}

	mon := &monitor.Monitor{Bus: bus, Sinks: alertSinks(cfg, log), Log: log}
	monDone := mon.Start(ctx)

	server := api.NewServer(ctrl, bus, metrics, log, api.SystemMeta{
		DryRun:      cfg.DryRun,
		Venue:       venue,
		Symbol:      cfg.Symbol,
		UseMockFeed: cfg.UseMockFeed,
		StaticDir:   cfg.StaticDir,
		Version:     buildVersion,
	}, api.Options{})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(":" + cfg.Port)
	}()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- ctrl.Run(ctx)
	}()

	var errs error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		errs = multierr.Append(errs, err)
		log.WithError(err).Error("control plane stopped")
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	errs = multierr.Append(errs, server.Shutdown(shutdownCtx))

	select {
	case err := <-loopDone:
		errs = multierr.Append(errs, err)
	case <-shutdownCtx.Done():
		errs = multierr.Append(errs, errors.New("poll loop did not stop before shutdown timeout"))
	}
	<-monDone
	return errs
}

// buildFeed picks the price source. In stream mode the websocket reader runs
// until ctx is cancelled.
func buildFeed(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) market.PriceFeed {
	if cfg.UseMockFeed {
		log.WithField("symbol", cfg.Symbol).Warn("using mock price feed")
		return market.NewMockFeed(100, 0.5, cfg.HistoryLimit, time.Now().UnixNano())
	}
	client := marketbinance.NewClient(cfg.FeedBaseURL, cfg.VenueTestnet)
	rest := market.NewRESTFeed(client, cfg.Symbol, cfg.HistoryInterval, cfg.HistoryLimit, cfg.FeedRateLimit, log)
	if cfg.FeedMode != "stream" {
		return rest
	}
	stream := market.NewStreamFeed(rest, marketbinance.NewStreamClient(cfg.StreamBaseURL, cfg.VenueTestnet, log), cfg.Symbol, cfg.StreamMaxAge, log)
	go stream.Run(ctx)
	return stream
}

// buildExecutor returns the executor and a venue label for status output.
func buildExecutor(cfg *config.Config, bus *events.Bus, log logrus.FieldLogger) (order.Executor, string) {
	if cfg.DryRun {
		log.Warn("dry-run mode: orders are simulated")
		return order.NewDryRunExecutor(order.DryRunConfig{
			SlippageBps:  cfg.DryRunSlippageBps,
			LatencyMinMs: cfg.DryRunLatencyMinMs,
			LatencyMaxMs: cfg.DryRunLatencyMaxMs,
		}, bus, log), "dry-run"
	}
	if cfg.WalletAPISecret == "" {
		log.Warn("WALLET_API_SECRET is empty; the venue will reject signed requests")
	}
	signer := exchange.NewHMACSigner(cfg.WalletAPIKey, cfg.WalletAPISecret)
	client := exspot.New(exspot.Config{
		BaseURL: cfg.VenueBaseURL,
		Testnet: cfg.VenueTestnet,
	}, signer, log)
	venue := "binance-spot"
	if cfg.VenueTestnet {
		venue = "binance-spot-testnet"
	}
	return order.NewGatewayExecutor(client, bus, log), venue
}

func alertSinks(cfg *config.Config, log logrus.FieldLogger) []monitor.AlertSink {
	sinks := []monitor.AlertSink{monitor.LogSink{Log: log}}
	if !cfg.TelegramEnabled() {
		return sinks
	}
	tg, err := monitor.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.WithError(err).Warn("telegram alerts disabled")
		return sinks
	}
	return append(sinks, tg)
}
