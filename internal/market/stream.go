package market

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	marketpkg "band-trader/pkg/market/binance"
)

// TradeSubscriber opens a live trade stream for one symbol.
type TradeSubscriber interface {
	SubscribeTrades(ctx context.Context, symbol string) (<-chan marketpkg.Trade, func(), error)
}

type tick struct {
	price float64
	at    time.Time // local receive time
}

// StreamFeed serves the current price from a websocket trade stream and
// falls back to another feed when the stream is down or stale. The
// historical series always comes from the fallback.
type StreamFeed struct {
	fallback PriceFeed
	sub      TradeSubscriber
	symbol   string
	maxAge   time.Duration

	minBackoff time.Duration
	maxBackoff time.Duration

	last      atomic.Pointer[tick]
	fallbacks atomic.Uint64
	log       logrus.FieldLogger
}

func NewStreamFeed(fallback PriceFeed, sub TradeSubscriber, symbol string, maxAge time.Duration, log logrus.FieldLogger) *StreamFeed {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Second
	}
	return &StreamFeed{
		fallback: fallback,
		sub:      sub,
		symbol:   symbol,
		maxAge:   maxAge,

		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,

		log: log.WithFields(logrus.Fields{"component": "stream-feed", "symbol": symbol}),
	}
}

// Run keeps the stream connected until ctx is done, reconnecting with
// exponential backoff capped at 30s. The backoff only resets once a
// connection has delivered a trade.
func (f *StreamFeed) Run(ctx context.Context) {
	backoff := f.minBackoff
	for {
		trades, stop, err := f.sub.SubscribeTrades(ctx, f.symbol)
		if err == nil {
			f.log.Info("trade stream connected")
			for t := range trades {
				if t.Price > 0 {
					f.last.Store(&tick{price: t.Price, at: time.Now()})
					backoff = f.minBackoff
				}
			}
			stop()
		}
		if ctx.Err() != nil {
			return
		}
		f.log.WithError(err).WithField("retry_in", backoff).Warn("trade stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

func (f *StreamFeed) FetchHistoricalSeries(ctx context.Context) ([]float64, error) {
	return f.fallback.FetchHistoricalSeries(ctx)
}

// FetchCurrentPrice returns the last streamed trade if it is younger than
// maxAge, otherwise the fallback's price.
func (f *StreamFeed) FetchCurrentPrice(ctx context.Context) (float64, error) {
	if t := f.last.Load(); t != nil && time.Since(t.at) <= f.maxAge {
		return t.price, nil
	}
	f.fallbacks.Add(1)
	return f.fallback.FetchCurrentPrice(ctx)
}

// Fallbacks counts prices served by the fallback feed.
func (f *StreamFeed) Fallbacks() uint64 {
	return f.fallbacks.Load()
}
