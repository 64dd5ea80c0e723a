package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	marketpkg "band-trader/pkg/market/binance"
)

// ErrFeedUnavailable marks any failure to obtain prices. It is transient:
// callers skip the cycle and retry on the next tick.
var ErrFeedUnavailable = errors.New("price feed unavailable")

// PriceFeed supplies the historical series used to derive thresholds and the
// current spot price polled every cycle.
type PriceFeed interface {
	FetchHistoricalSeries(ctx context.Context) ([]float64, error)
	FetchCurrentPrice(ctx context.Context) (float64, error)
}

// RESTFeed reads one symbol from the public REST market data API.
type RESTFeed struct {
	Client   *marketpkg.Client
	Symbol   string
	Interval string // kline interval for the historical series, e.g. "1h"
	Limit    int    // number of historical klines

	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// NewRESTFeed paces outbound requests to at most rps per second.
func NewRESTFeed(client *marketpkg.Client, symbol, interval string, limit int, rps float64, log logrus.FieldLogger) *RESTFeed {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if rps <= 0 {
		rps = 5
	}
	return &RESTFeed{
		Client:   client,
		Symbol:   symbol,
		Interval: interval,
		Limit:    limit,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		log:      log.WithFields(logrus.Fields{"component": "feed", "symbol": symbol}),
	}
}

// FetchHistoricalSeries returns kline closes, oldest first.
func (f *RESTFeed) FetchHistoricalSeries(ctx context.Context) ([]float64, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, unavailable(err)
	}
	klines, err := f.Client.GetKlines(ctx, f.Symbol, f.Interval, f.Limit)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(klines) == 0 {
		return nil, unavailable(errors.New("no klines returned"))
	}
	f.log.WithFields(logrus.Fields{"klines": len(klines), "interval": f.Interval}).Debug("historical series fetched")
	return marketpkg.Closes(klines), nil
}

// FetchCurrentPrice returns the latest traded price.
func (f *RESTFeed) FetchCurrentPrice(ctx context.Context) (float64, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, unavailable(err)
	}
	tk, err := f.Client.GetTickerPrice(ctx, f.Symbol)
	if err != nil {
		return 0, unavailable(err)
	}
	if tk.Price <= 0 {
		return 0, unavailable(fmt.Errorf("non-positive price %v", tk.Price))
	}
	return tk.Price, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
}
